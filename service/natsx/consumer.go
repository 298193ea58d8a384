package natsx

import (
	"PShare/logger"
	"PShare/tools/errs"
	"PShare/tools/safe"
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// Subscribe attaches h to the biz route. JetStream deliveries are acked when
// h returns nil and naked otherwise.
func (cs *NatsxConsumer) Subscribe(biz string, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return errs.New("route not found", "biz", biz)
	}
	h = NatsxChain(h, cs.mws...)

	var (
		sub *nats.Subscription
		err error
	)
	switch r.Mode {
	case Core:
		cb := func(m *nats.Msg) {
			safe.Run(func() {
				if err := h(context.Background(), toMessage(m)); err != nil {
					logger.Warn("nats handler failed", zap.String("subject", m.Subject), zap.Error(err))
				}
			})
		}
		if r.Queue == "" {
			sub, err = cs.c.nc.Subscribe(r.Subject, cb)
		} else {
			sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
		}
		if err == nil {
			_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
		}

	case JetStreamPush:
		js := cs.c.jetStream()
		if js == nil {
			return errs.New("jetstream not initialized")
		}
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(r.AckWait),
			nats.MaxAckPending(r.MaxAckPending),
		}
		if r.Durable != "" {
			opts = append(opts, nats.Durable(r.Durable))
		}
		cb := func(m *nats.Msg) {
			var herr error
			safe.Run(func() { herr = h(context.Background(), toMessage(m)) })
			if herr == nil {
				_ = m.Ack()
			} else {
				logger.Warn("nats handler failed, nak", zap.String("subject", m.Subject), zap.Error(herr))
				_ = m.Nak()
			}
		}
		if r.Queue == "" {
			sub, err = js.Subscribe(r.Subject, cb, opts...)
		} else {
			sub, err = js.QueueSubscribe(r.Subject, r.Queue, cb, opts...)
		}

	default:
		return errs.New("mode not supported in Subscribe", "mode", r.Mode)
	}
	if err != nil {
		return errs.WrapMsg(err, "subscribe", "subject", r.Subject)
	}

	cs.c.mu.Lock()
	if old := cs.c.subs[biz]; old != nil {
		_ = old.Unsubscribe()
	}
	cs.c.subs[biz] = sub
	cs.c.mu.Unlock()
	return nil
}

// Unsubscribe drops the biz subscription, if any.
func (cs *NatsxConsumer) Unsubscribe(biz string) {
	cs.c.mu.Lock()
	sub := cs.c.subs[biz]
	delete(cs.c.subs, biz)
	cs.c.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
}

func toMessage(m *nats.Msg) NatsxMessage {
	return NatsxMessage{
		Subject: m.Subject,
		Data:    append([]byte(nil), m.Data...),
		Header:  headerToMap(m.Header),
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
