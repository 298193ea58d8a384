package natsx

import (
	"PShare/tools/errs"
	"context"
)

// NatsManager is the one object callers hold: client, producer and
// consumer behind a single facade. main builds it and injects it.
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
}

func NewNatsManager(cfg NatsxConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	return &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, middlewares...),
	}, nil
}

var errNotInitialized = errs.New("nats manager not initialized")

func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if m == nil || m.client == nil {
		return errNotInitialized
	}
	return m.client.RegisterRoute(r)
}

func (m *NatsManager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return errNotInitialized
	}
	return m.producer.Publish(ctx, biz, data, hdr)
}

// Subscribe attaches h to biz. Routes with a Queue share the load inside the
// group; an empty Queue broadcasts to every subscriber.
func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if m == nil || m.consumer == nil {
		return errNotInitialized
	}
	return m.consumer.Subscribe(biz, h)
}

func (m *NatsManager) Unsubscribe(biz string) {
	if m == nil || m.consumer == nil {
		return
	}
	m.consumer.Unsubscribe(biz)
}
