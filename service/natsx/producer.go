package natsx

import (
	"PShare/logger"
	"PShare/tools/errs"
	"context"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish sends data on the biz route's subject.
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return errs.New("route not found", "biz", biz)
	}
	msg := nats.NewMsg(r.Subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}

	switch r.Mode {
	case Core:
		if err := p.c.nc.PublishMsg(msg); err != nil {
			return errs.WrapMsg(err, "publish failed", "subject", r.Subject)
		}
		return nil
	case JetStreamPush:
		js := p.c.jetStream()
		if js == nil {
			return errs.New("jetstream not initialized")
		}
		ack, err := js.PublishMsg(msg, nats.Context(ctx))
		if err != nil {
			return errs.WrapMsg(err, "publish failed", "subject", r.Subject)
		}
		logger.Debug("published", zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence))
		return nil
	default:
		return errs.New("unsupported mode", "mode", r.Mode)
	}
}
