package chat

import (
	"PShare/module/chat/event"
	"PShare/tools/errs"
	"context"
	"fmt"

	"github.com/golang/glog"
)

// Handler serves one inbound event kind. data is the frame's "data" object.
type Handler interface {
	Kind() event.Kind
	Handle(ctx context.Context, c *Conn, data map[string]any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	K  event.Kind
	Fn func(ctx context.Context, c *Conn, data map[string]any) error
}

func (h HandlerFunc) Kind() event.Kind { return h.K }

func (h HandlerFunc) Handle(ctx context.Context, c *Conn, data map[string]any) error {
	return h.Fn(ctx, c, data)
}

// Dispatcher routes inbound frames by kind. It is complete by construction:
// NewDispatcher fails unless every inbound kind has exactly one handler.
type Dispatcher struct {
	handlers map[event.Kind]Handler
}

func NewDispatcher(hs ...Handler) (*Dispatcher, error) {
	d := &Dispatcher{handlers: make(map[event.Kind]Handler, len(hs))}
	for _, h := range hs {
		k := h.Kind()
		if !k.Inbound() {
			return nil, fmt.Errorf("handler for non inbound kind %v", k)
		}
		if _, dup := d.handlers[k]; dup {
			return nil, fmt.Errorf("duplicate handler for %v", k)
		}
		d.handlers[k] = h
	}
	for _, k := range event.InboundKinds() {
		if _, ok := d.handlers[k]; !ok {
			return nil, fmt.Errorf("no handler for %v", k)
		}
	}
	return d, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, k event.Kind, data map[string]any) error {
	h, ok := d.handlers[k]
	if !ok {
		return errs.ErrValidation.WrapMsg("unknown event", "event", k.String())
	}
	if glog.V(2) {
		glog.Infof("dispatch event=%s conn=%s user=%s", k, c.ID, c.UserID)
	}
	return h.Handle(ctx, c, data)
}
