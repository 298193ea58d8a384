package mgo

import (
	"PShare/logger"
	"PShare/tools/errs"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Config is the Mongo connection setup.
type Config struct {
	Uri         string
	Address     []string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
}

func applyConfigToOptions(cfg *Config) (*options.ClientOptions, error) {
	var opts *options.ClientOptions
	switch {
	case cfg.Uri != "":
		opts = options.Client().ApplyURI(cfg.Uri)
	case len(cfg.Address) > 0:
		opts = options.Client().SetHosts(cfg.Address)
	default:
		return nil, errs.New("mongo uri or address is required")
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(uint64(cfg.MaxPoolSize))
	}
	// explicit credentials win over the uri
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	opts.SetAppName("pshare-chat")
	return opts, nil
}

// Manager owns one mongo client. Connect retries with backoff until the
// first ping succeeds; afterwards the driver handles reconnects and the
// health loop only records the latest failure.
type Manager struct {
	mu      sync.RWMutex
	client  *mongo.Client
	db      *mongo.Database
	lastErr atomic.Value // error
}

func NewManager() *Manager {
	return &Manager{}
}

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second
)

// Connect blocks until connected or ctx is done.
func (m *Manager) Connect(ctx context.Context, cfg *Config) (*mongo.Database, error) {
	if cfg.Database == "" {
		return nil, errs.New("mongo database is required")
	}
	opts, err := applyConfigToOptions(cfg)
	if err != nil {
		return nil, err
	}

	attempt := 0
	for {
		cli, err := connectMongo(ctx, opts)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.db = cli.Database(cfg.Database)
			m.mu.Unlock()
			logger.Info("mongo connected", zap.String("db", cfg.Database))
			return m.DB(), nil
		}
		m.lastErr.Store(err)
		logger.Warn("mongo connect failed", zap.Int("attempt", attempt), zap.Error(err))

		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1))
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errs.WrapMsg(ctx.Err(), "mongo connect aborted", "uri", cfg.Uri)
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// Watch pings periodically until ctx is done, then disconnects.
func (m *Manager) Watch(ctx context.Context) {
	t := time.NewTicker(healthEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-t.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				continue
			}
			if err := c.Ping(ctx, nil); err != nil {
				m.lastErr.Store(err)
				logger.Warn("mongo ping failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) DB() *mongo.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Err is the most recent connection or ping error.
func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client, m.db = nil, nil
	}
}

func connectMongo(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}
