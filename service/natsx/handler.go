package natsx

import "context"

// NatsxMessage is a delivery from either mode.
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler processes one delivery. A non nil error naks JetStream deliveries.
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware wraps a handler (logging, dedup, metrics).
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain wraps h in mws, first middleware outermost.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
