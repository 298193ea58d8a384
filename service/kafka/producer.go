package kafka

import (
	"PShare/global"
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"PShare/service/metrics"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

const (
	TypeMessageCreated = "message.created"
	TypeMessageRead    = "message.read"
)

// MessageEvent is the record written to the message event topic.
type MessageEvent struct {
	Type    string                    `json:"type"`
	RoomID  string                    `json:"roomId"`
	Message *model.Message            `json:"message,omitempty"`
	Receipt *event.ReadReceiptPayload `json:"receipt,omitempty"`
	At      time.Time                 `json:"at"`
}

// EventSink publishes message events through an async producer. Sends never
// block the gateway: a full input queue drops the event.
type EventSink struct {
	p     sarama.AsyncProducer
	topic string

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewEventSink connects to the brokers, optionally ensures the topic, and
// starts the producer.
func NewEventSink(c Config) (*EventSink, error) {
	cfg := BuildBaseConfig(c)
	client, err := sarama.NewClient(c.Brokers, cfg)
	if err != nil {
		return nil, err
	}
	if c.EnsureTopicOnStart {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := EnsureTopic(admin, c.Topic, c); err != nil {
			logger.Warn("ensure topic failed", zap.String("topic", c.Topic), zap.Error(err))
		}
	}
	p, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewEventSinkWithProducer(p, c.Topic), nil
}

func NewEventSinkWithProducer(p sarama.AsyncProducer, topic string) *EventSink {
	s := &EventSink{p: p, topic: topic, done: make(chan struct{})}
	go s.drain()
	return s
}

func (s *EventSink) drain() {
	defer close(s.done)
	succ, errc := s.p.Successes(), s.p.Errors()
	for succ != nil || errc != nil {
		select {
		case msg, ok := <-succ:
			if !ok {
				succ = nil
				continue
			}
			logger.Debug("message event sent", zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset))
		case perr, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			metrics.EventSinkErrors.Inc()
			logger.Warn("message event failed", zap.Error(perr.Err))
		}
	}
}

func (s *EventSink) MessageCreated(_ context.Context, m *model.Message) {
	s.send(MessageEvent{Type: TypeMessageCreated, RoomID: m.RoomID, Message: m, At: m.CreatedAt})
}

func (s *EventSink) MessageRead(_ context.Context, r *event.ReadReceiptPayload) {
	s.send(MessageEvent{Type: TypeMessageRead, RoomID: r.RoomID, Receipt: r, At: r.ReadAt})
}

func (s *EventSink) send(ev MessageEvent) {
	msg, err := buildMessage(s.topic, ev)
	if err != nil {
		logger.Error("encode message event", zap.Error(err))
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.p.Input() <- msg:
	default:
		metrics.EventSinkErrors.Inc()
		logger.Warn("message event queue full, dropped", zap.String("type", ev.Type), zap.String("room", ev.RoomID))
	}
}

func buildMessage(topic string, ev MessageEvent) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(global.MessageEventKey(ev.RoomID)),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(ev.Type)},
		},
	}, nil
}

// Close flushes in flight events and stops the producer.
func (s *EventSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.p.AsyncClose()
	<-s.done
	return nil
}
