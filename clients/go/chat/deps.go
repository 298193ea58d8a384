// Package chat is the Go client for the PShare conversation service. It
// keeps a conversation and an inbox in sync over the realtime channel,
// falling back to REST polling and a local cache when the socket is down.
package chat

import (
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"context"
	"encoding/json"
	"time"
)

// Handler receives the raw payload of one server event.
type Handler func(data json.RawMessage)

// Channel is the realtime transport.
type Channel interface {
	Connected() bool
	Emit(kind event.Kind, payload any) error
	On(kind event.Kind, h Handler) (off func())
	OnStatus(fn func(connected bool)) (off func())
}

// API is the REST fallback surface.
type API interface {
	History(ctx context.Context, otherUserID string) ([]*model.Message, error)
	Send(ctx context.Context, to, text string) (*model.Message, error)
	Conversations(ctx context.Context) ([]model.ConversationSummary, error)
	MarkRead(ctx context.Context, otherUserID string) (int64, error)
}

// InterestSource lists users who showed interest in my items. The inbox
// uses it only when it has nothing better.
type InterestSource interface {
	InterestedUsers(ctx context.Context) ([]*model.UserSummary, error)
}

// Cache is a client local key value store. Values round trip through JSON.
type Cache interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

type Deps struct {
	Channel   Channel
	API       API
	Cache     Cache
	Interests InterestSource // inbox only, optional
}

type Options struct {
	// DedupWindow is how close two messages with the same text and author
	// must be to count as one.
	DedupWindow  time.Duration
	TypingTTL    time.Duration
	OfflinePoll  time.Duration
	OnlinePoll   time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
}

const (
	DefaultDedupWindow = 1000 * time.Millisecond
	DefaultTypingTTL   = 1500 * time.Millisecond
	DefaultOfflinePoll = 5 * time.Second
	DefaultOnlinePoll  = 15 * time.Second
)

func DefaultOptions() Options {
	return Options{
		DedupWindow:  DefaultDedupWindow,
		TypingTTL:    DefaultTypingTTL,
		OfflinePoll:  DefaultOfflinePoll,
		OnlinePoll:   DefaultOnlinePoll,
		FetchTimeout: 10 * time.Second,
		Now:          time.Now,
	}
}

func (o *Options) norm() {
	d := DefaultOptions()
	if o.DedupWindow <= 0 {
		o.DedupWindow = d.DedupWindow
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = d.TypingTTL
	}
	if o.OfflinePoll <= 0 {
		o.OfflinePoll = d.OfflinePoll
	}
	if o.OnlinePoll <= 0 {
		o.OnlinePoll = d.OnlinePoll
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func convoKey(me, other string) string { return "convos:" + me + ":" + other }

func indexKey(me string) string { return "convosIndex:" + me }

// notify does a coalesced, non blocking wakeup on ch.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
