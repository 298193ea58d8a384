package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/message"
	"PShare/module/chat/model"
	"PShare/module/user"
	"PShare/service/storage"
	"PShare/tools/errs"
	"PShare/tools/security"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conf tunes one gateway node.
type Conf struct {
	NodeID         string
	HistoryLimit   int           // messages replayed on join
	SendQueue      int           // per connection outbound frames
	MaxMessageSize int64         // inbound frame bytes
	PingInterval   time.Duration // must be shorter than PongWait
	PongWait       time.Duration
	WriteWait      time.Duration
	HandlerTimeout time.Duration
	AllowedOrigins []string // empty or "*" allows any browser origin
	Auth           security.Options

	// PresenceRefresh is the minimum gap between presence renewals of one
	// connection. Keep it under the presence TTL.
	PresenceRefresh time.Duration
}

func (c *Conf) norm() {
	if c.NodeID == "" {
		c.NodeID = "gateway"
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > MaxJoinHistory {
		c.HistoryLimit = MaxJoinHistory
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 16
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 10 * time.Second
	}
	if c.PresenceRefresh <= 0 {
		c.PresenceRefresh = time.Hour
	}
}

// MaxJoinHistory caps the history replayed on join.
const MaxJoinHistory = 50

// Bus carries already encoded frames to the other gateway nodes.
type Bus interface {
	Publish(ctx context.Context, env *event.Envelope) error
	Subscribe(fn func(env *event.Envelope)) (unsubscribe func(), err error)
}

// EventSink receives durable message facts for downstream consumers. Calls
// must not block the caller.
type EventSink interface {
	MessageCreated(ctx context.Context, m *model.Message)
	MessageRead(ctx context.Context, r *event.ReadReceiptPayload)
}

// Server is the realtime gateway. It is built once and handed to whoever
// needs to emit; nothing in the package is global.
type Server struct {
	conf     Conf
	hub      *Hub
	msgs     *message.Service
	users    user.Directory
	presence storage.Presence
	bus      Bus
	sink     EventSink
	notifier *Notifier
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	ctx      context.Context
	disp     *Dispatcher
	unsubBus func()
}

type Option func(*Server)

func WithPresence(p storage.Presence) Option { return func(s *Server) { s.presence = p } }

func WithBus(b Bus) Option { return func(s *Server) { s.bus = b } }

func WithEventSink(k EventSink) Option { return func(s *Server) { s.sink = k } }

func NewServer(conf Conf, msgs *message.Service, users user.Directory, opts ...Option) *Server {
	conf.norm()
	s := &Server{
		conf:  conf,
		hub:   NewHub(),
		msgs:  msgs,
		users: users,
		ctx:   context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.notifier = NewNotifier(s, s.presence)
	return s
}

// Start builds the dispatcher from hs and attaches the bus. It fails when
// an inbound event kind has no handler.
func (s *Server) Start(ctx context.Context, hs ...Handler) error {
	d, err := NewDispatcher(hs...)
	if err != nil {
		return err
	}
	var unsub func()
	if s.bus != nil {
		if unsub, err = s.bus.Subscribe(s.deliverRemote); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.ctx, s.disp, s.unsubBus = ctx, d, unsub
	s.mu.Unlock()
	logger.Info("gateway started", zap.String("node", s.conf.NodeID), zap.Int("handlers", len(hs)))
	return nil
}

// Close detaches the bus and closes every connection on this node.
func (s *Server) Close() {
	s.mu.Lock()
	unsub := s.unsubBus
	s.unsubBus = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	for _, c := range s.hub.members(event.ChannelAll) {
		c.close()
	}
}

func (s *Server) dispatcher() (*Dispatcher, context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disp, s.ctx
}

func (s *Server) Conf() Conf                 { return s.conf }
func (s *Server) Hub() *Hub                  { return s.hub }
func (s *Server) Messages() *message.Service { return s.msgs }
func (s *Server) Users() user.Directory      { return s.users }
func (s *Server) Notifier() *Notifier        { return s.notifier }

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.conf.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.conf.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	logger.Warn("[WS] origin rejected", zap.String("origin", origin))
	return false
}

// Emit sends an event to one connection only.
func (s *Server) Emit(c *Conn, kind event.Kind, payload any) {
	frame, err := event.Encode(kind, payload)
	if err != nil {
		logger.Error("encode frame failed", zap.String("event", kind.String()), zap.Error(err))
		return
	}
	c.enqueue(frame)
}

// EmitError reports err to the offending connection. The connection stays
// open.
func (s *Server) EmitError(c *Conn, err error, kind event.Kind) {
	pub := errorPayload(err)
	if kind != event.KindUnknown {
		pub.Event = kind.String()
	}
	s.Emit(c, event.KindError, pub)
}

// Broadcast delivers to every subscriber of channel on this node, except
// the given connection, and forwards to the other nodes over the bus.
func (s *Server) Broadcast(ctx context.Context, channel string, except *Conn, kind event.Kind, payload any) {
	frame, err := event.Encode(kind, payload)
	if err != nil {
		logger.Error("encode frame failed", zap.String("event", kind.String()), zap.Error(err))
		return
	}
	exceptID := ""
	if except != nil {
		exceptID = except.ID
	}
	s.hub.deliver(channel, exceptID, frame)

	if s.bus == nil {
		return
	}
	env := &event.Envelope{Origin: s.conf.NodeID, Channel: channel, Except: exceptID, Frame: frame}
	if err := s.bus.Publish(ctx, env); err != nil {
		logger.Warn("bus publish failed", zap.String("channel", channel), zap.String("event", kind.String()), zap.Error(err))
	}
}

// deliverRemote hands an envelope from another node to local subscribers.
func (s *Server) deliverRemote(env *event.Envelope) {
	if env == nil || env.Origin == s.conf.NodeID {
		return
	}
	s.hub.deliver(env.Channel, env.Except, env.Frame)
}

func errorPayload(err error) event.ErrorPayload {
	pub := errs.Public(err)
	msg := pub.Msg
	if pub.Detail != "" {
		msg += ": " + pub.Detail
	}
	return event.ErrorPayload{Message: msg, Code: pub.Code}
}

var errNotStarted = errors.New("gateway not started")
