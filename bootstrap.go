package main

import (
	"PShare/global/config"
	"PShare/logger"
	mid "PShare/middleware"
	midsec "PShare/middleware/security"
	"PShare/module/chat/api"
	"PShare/module/chat/message"
	"PShare/module/chat/model"
	"PShare/module/item"
	"PShare/module/user"
	"PShare/service/chat"
	"PShare/service/chat/handlers"
	"PShare/service/kafka"
	"PShare/service/mgo"
	"PShare/service/natsx"
	"PShare/service/pg"
	"PShare/service/storage"
	redisx "PShare/service/storage/redis"
	"PShare/tools"
	"PShare/tools/errs"
	"PShare/tools/security"
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// app owns every long lived dependency; Close releases them in reverse.
type app struct {
	conf    config.AppConfig
	srv     *chat.Server
	msgs    *message.Service
	users   user.Directory
	closers []func()
}

func newApp(ctx context.Context, conf config.AppConfig) (*app, error) {
	a := &app{conf: conf}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	conf := a.conf
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if a.users == nil {
		a.users = memoryDirectory(conf.DevUsers)
	}
	a.msgs = message.NewService(store, a.users)

	var opts []chat.Option
	presence, err := a.openPresence(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, chat.WithPresence(presence))

	var nm *natsx.NatsManager
	if conf.Nats.Enabled {
		nm, err = natsx.NewNatsManager(natsx.NatsxConfig{
			Servers:       conf.Nats.Servers,
			Name:          conf.Nats.Name + "-" + conf.NodeId,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		})
		if err != nil {
			return errs.WrapMsg(err, "connect nats", "servers", strings.Join(conf.Nats.Servers, ","))
		}
		a.closers = append(a.closers, func() { _ = nm.Close() })
		bus, err := natsx.NewBus(nm, conf.Nats.FanoutSubject)
		if err != nil {
			return err
		}
		opts = append(opts, chat.WithBus(bus))
	}

	if conf.Kafka.Enabled {
		kc := kafka.DefaultConfig()
		kc.Brokers = conf.Kafka.Brokers
		kc.Topic = conf.Kafka.Topic
		sink, err := kafka.NewEventSink(kc)
		if err != nil {
			return errs.WrapMsg(err, "start kafka sink", "brokers", strings.Join(kc.Brokers, ","))
		}
		a.closers = append(a.closers, func() { _ = sink.Close() })
		opts = append(opts, chat.WithEventSink(sink))
	}

	gw := conf.Gateway
	a.srv = chat.NewServer(chat.Conf{
		NodeID:         conf.NodeId,
		HistoryLimit:   gw.HistoryLimit,
		SendQueue:      gw.SendQueue,
		MaxMessageSize: gw.MaxMessageSize,
		PingInterval:   gw.PingInterval,
		PongWait:       gw.PongWait,
		WriteWait:      gw.WriteWait,
		AllowedOrigins: conf.AllowedOrigins,
		Auth:           security.DefaultOptions([]byte(conf.JwtSecret)),

		PresenceRefresh: gw.PresenceTTL / 2,
	}, a.msgs, a.users, opts...)
	if err := a.srv.Start(ctx, handlers.All(a.srv)...); err != nil {
		return err
	}
	a.closers = append(a.closers, a.srv.Close)

	if nm != nil {
		relay := item.NewRelay(a.srv.Notifier())
		err := relay.Register(ctx, nm, item.RelayConf{
			Subject: conf.Nats.InterestSubject,
			Queue:   conf.Nats.InterestQueue,
			Mode:    tools.ParseMode(conf.Nats.InterestMode),
		})
		if err != nil {
			return errs.WrapMsg(err, "register interest relay", "subject", conf.Nats.InterestSubject)
		}
	}
	return nil
}

// openStore picks the message store. The mongo driver also backs the user
// directory.
func (a *app) openStore(ctx context.Context) (message.Store, error) {
	conf := a.conf
	mongoNeeded := conf.StoreDriver == config.StoreMongo || conf.UserDirectory == config.StoreMongo
	if mongoNeeded {
		m := mgo.NewManager()
		connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := m.Connect(connCtx, &mgo.Config{
			Uri:         conf.Mongo.Uri,
			Database:    conf.Mongo.Database,
			Username:    conf.Mongo.Username,
			Password:    conf.Mongo.Password,
			MaxPoolSize: conf.Mongo.MaxPoolSize,
		})
		cancel()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, m.Close)
		go m.Watch(ctx)
		a.users = user.NewMongoDirectory(db)

		if conf.StoreDriver == config.StoreMongo {
			s := message.NewMongoStore(db)
			if err := s.EnsureIndexes(ctx); err != nil {
				return nil, err
			}
			logger.Info("message store", zap.String("driver", "mongo"))
			return s, nil
		}
	}

	switch conf.StoreDriver {
	case config.StorePostgres:
		pool, err := pg.Connect(ctx, conf.Postgres.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		s := message.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		logger.Info("message store", zap.String("driver", "postgres"))
		return s, nil
	case config.StoreMemory, "":
		logger.Warn("message store is in memory, history is lost on restart")
		return message.NewMemoryStore(), nil
	default:
		return nil, errs.New("unknown store driver", "driver", conf.StoreDriver)
	}
}

func (a *app) openPresence(ctx context.Context) (storage.Presence, error) {
	if !a.conf.Redis.Enabled {
		return storage.NewMemoryPresence(), nil
	}
	rc := a.conf.Redis
	rdb, err := redisx.New(ctx, redisx.Config{Addr: rc.Addr, Password: rc.Password, DB: rc.DB, PoolSize: rc.PoolSize})
	if err != nil {
		return nil, errs.WrapMsg(err, "connect redis", "addr", rc.Addr)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return storage.NewRedisPresence(rdb, a.conf.Gateway.PresenceTTL), nil
}

// Router builds the gin engine: websocket, REST fallback and ops routes.
func (a *app) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mid.AccessLog(), mid.Origin(a.conf.AllowedOrigins))
	r.Use(mid.NewManager().Add("request-id", mid.RequestID()).Use())

	r.GET("/ws", a.srv.HandleWS)
	auth := midsec.Middleware(midsec.Options{
		Token: security.DefaultOptions([]byte(a.conf.JwtSecret)),
		Users: a.users,
	})
	api.NewMessageAPI(a.msgs, a.srv).Register(r, auth)
	api.RegisterOps(r)
	return r
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// memoryDirectory seeds a directory from "id:name" pairs.
func memoryDirectory(pairs []string) *user.MemoryDirectory {
	d := user.NewMemoryDirectory()
	for _, p := range pairs {
		id, name, _ := strings.Cut(p, ":")
		if id = strings.TrimSpace(id); id != "" {
			d.Put(model.UserSummary{ID: id, Name: strings.TrimSpace(name)})
		}
	}
	return d
}
