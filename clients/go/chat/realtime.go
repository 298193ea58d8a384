package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/tools/errs"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNotConnected = errs.New("realtime channel not connected")

type RealtimeConf struct {
	URL        string // ws://host/ws
	Token      string // sent as "Authorization: Bearer"
	Header     http.Header
	Dialer     *websocket.Dialer
	WriteWait  time.Duration
	MaxBackoff time.Duration
}

// Realtime is a Channel over one websocket that redials with exponential
// backoff until Close.
type Realtime struct {
	conf RealtimeConf

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[event.Kind]map[uint64]Handler
	status   map[uint64]func(bool)
	seq      uint64

	writeMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRealtime(conf RealtimeConf) *Realtime {
	if conf.Dialer == nil {
		conf.Dialer = websocket.DefaultDialer
	}
	if conf.WriteWait <= 0 {
		conf.WriteWait = 10 * time.Second
	}
	if conf.MaxBackoff <= 0 {
		conf.MaxBackoff = 30 * time.Second
	}
	return &Realtime{
		conf:     conf,
		handlers: make(map[event.Kind]map[uint64]Handler),
		status:   make(map[uint64]func(bool)),
	}
}

// Run starts the dial loop in the background.
func (r *Realtime) Run(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()
	go r.loop(ctx)
}

func (r *Realtime) header() http.Header {
	h := http.Header{}
	for k, v := range r.conf.Header {
		h[k] = append([]string(nil), v...)
	}
	if r.conf.Token != "" {
		h.Set("Authorization", "Bearer "+r.conf.Token)
	}
	return h
}

func (r *Realtime) loop(ctx context.Context) {
	defer close(r.done)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = r.conf.MaxBackoff
	b.MaxElapsedTime = 0

	for {
		conn, _, err := r.conf.Dialer.DialContext(ctx, r.conf.URL, r.header())
		if err == nil {
			b.Reset()
			r.serve(ctx, conn)
		} else {
			logger.Debug("realtime dial failed", zap.String("url", r.conf.URL), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// serve owns conn until it fails or ctx ends.
func (r *Realtime) serve(ctx context.Context, conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.fireStatus(true)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("realtime connection lost", zap.Error(err))
			}
			break
		}
		kind, data, err := event.DecodeOutbound(raw)
		if err != nil {
			logger.Debug("drop server frame", zap.Error(err))
			continue
		}
		r.dispatch(kind, data)
	}
	close(stop)
	_ = conn.Close()

	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()
	r.fireStatus(false)
}

func (r *Realtime) dispatch(kind event.Kind, data []byte) {
	r.mu.RLock()
	hs := make([]Handler, 0, len(r.handlers[kind]))
	for _, h := range r.handlers[kind] {
		hs = append(hs, h)
	}
	r.mu.RUnlock()
	for _, h := range hs {
		h(data)
	}
}

func (r *Realtime) fireStatus(connected bool) {
	r.mu.RLock()
	fs := make([]func(bool), 0, len(r.status))
	for _, f := range r.status {
		fs = append(fs, f)
	}
	r.mu.RUnlock()
	for _, f := range fs {
		f(connected)
	}
}

func (r *Realtime) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn != nil
}

func (r *Realtime) Emit(kind event.Kind, payload any) error {
	if !kind.Inbound() {
		return errs.ErrValidation.WrapMsg("not a client event", "event", kind.String())
	}
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := event.Encode(kind, payload)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(r.conf.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errs.WrapMsg(err, "write frame", "event", kind.String())
	}
	return nil
}

func (r *Realtime) On(kind event.Kind, h Handler) (off func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := r.seq
	if r.handlers[kind] == nil {
		r.handlers[kind] = make(map[uint64]Handler)
	}
	r.handlers[kind][id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers[kind], id)
	}
}

func (r *Realtime) OnStatus(fn func(connected bool)) (off func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := r.seq
	r.status[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.status, id)
	}
}

// Close stops redialing and closes the socket.
func (r *Realtime) Close() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

var _ Channel = (*Realtime)(nil)
