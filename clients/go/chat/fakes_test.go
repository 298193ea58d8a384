package chat

import (
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type emitted struct {
	kind    event.Kind
	payload any
}

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	emits     []emitted
	handlers  map[event.Kind]map[int]Handler
	status    map[int]func(bool)
	seq       int
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{
		connected: connected,
		handlers:  make(map[event.Kind]map[int]Handler),
		status:    make(map[int]func(bool)),
	}
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) Emit(kind event.Kind, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.emits = append(f.emits, emitted{kind, payload})
	return nil
}

func (f *fakeChannel) On(kind event.Kind, h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	if f.handlers[kind] == nil {
		f.handlers[kind] = make(map[int]Handler)
	}
	f.handlers[kind][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[kind], id)
	}
}

func (f *fakeChannel) OnStatus(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	f.status[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.status, id)
	}
}

// fire delivers a server event to every handler of kind.
func (f *fakeChannel) fire(t *testing.T, kind event.Kind, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.mu.Lock()
	var hs []Handler
	for _, h := range f.handlers[kind] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	var fs []func(bool)
	for _, fn := range f.status {
		fs = append(fs, fn)
	}
	f.mu.Unlock()
	for _, fn := range fs {
		fn(v)
	}
}

func (f *fakeChannel) sent(kind event.Kind) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.emits {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeChannel) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.status)
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

var errFakeDown = errors.New("server down")

// fakeAPI is a tiny in memory server for one user pair.
type fakeAPI struct {
	mu       sync.Mutex
	down     bool
	history  []*model.Message
	convos   []model.ConversationSummary
	sends    []string
	historyN int
	nextID   int
	marked   []string

	// inFlight runs inside Conversations before the snapshot is taken.
	inFlight func()
}

func (a *fakeAPI) History(context.Context, string) ([]*model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.historyN++
	if a.down {
		return nil, errFakeDown
	}
	return append([]*model.Message(nil), a.history...), nil
}

func (a *fakeAPI) Send(_ context.Context, to, text string) (*model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return nil, errFakeDown
	}
	a.nextID++
	m := &model.Message{ID: serverID(a.nextID), From: "u1", To: to, Text: text, RoomID: "room:u1:u2", CreatedAt: time.Now().UTC()}
	a.history = append(a.history, m)
	a.sends = append(a.sends, text)
	return m, nil
}

func (a *fakeAPI) Conversations(context.Context) ([]model.ConversationSummary, error) {
	if a.inFlight != nil {
		a.inFlight()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return nil, errFakeDown
	}
	return append([]model.ConversationSummary(nil), a.convos...), nil
}

func (a *fakeAPI) MarkRead(_ context.Context, other string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return 0, errFakeDown
	}
	a.marked = append(a.marked, other)
	return 1, nil
}

func (a *fakeAPI) sendCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sends)
}

func (a *fakeAPI) historyCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.historyN
}

func serverID(n int) string {
	return fmt.Sprintf("%020d", n)
}

type fakeInterests struct {
	users []*model.UserSummary
}

func (f *fakeInterests) InterestedUsers(context.Context) ([]*model.UserSummary, error) {
	return f.users, nil
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
