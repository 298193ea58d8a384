package natsx

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

const BizGatewayFanout = "gateway.fanout"

// Bus relays gateway broadcasts between nodes over a core subject. Every
// node subscribes without a queue group so each one sees every envelope.
type Bus struct {
	m *NatsManager
}

func NewBus(m *NatsManager, subject string) (*Bus, error) {
	if err := m.RegisterRoute(NatsxRoute{Biz: BizGatewayFanout, Subject: subject, Mode: Core}); err != nil {
		return nil, err
	}
	return &Bus{m: m}, nil
}

func (b *Bus) Publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.m.Publish(ctx, BizGatewayFanout, data, nil)
}

func (b *Bus) Subscribe(fn func(env *event.Envelope)) (func(), error) {
	err := b.m.Subscribe(BizGatewayFanout, func(_ context.Context, msg NatsxMessage) error {
		return dispatchEnvelope(msg.Data, fn)
	})
	if err != nil {
		return nil, err
	}
	return func() { b.m.Unsubscribe(BizGatewayFanout) }, nil
}

func dispatchEnvelope(data []byte, fn func(env *event.Envelope)) error {
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("bad fanout envelope", zap.Int("len", len(data)), zap.Error(err))
		return nil // a poison message is not worth a redelivery
	}
	fn(&env)
	return nil
}
