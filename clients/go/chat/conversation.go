package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"PShare/module/chat/room"
	"PShare/tools/errs"
	"PShare/tools/safe"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Receipt struct {
	ReadBy string    `json:"readBy"`
	ReadAt time.Time `json:"readAt"`
}

// Conversation keeps one (me, other) room in sync. All state sits behind mu
// and is fed by transport callbacks, poller ticks and background REST calls.
type Conversation struct {
	me, other, roomID string
	deps              Deps
	opts              Options
	poller            *Poller
	updates           chan struct{}

	mu          sync.Mutex
	messages    []Message
	receipts    map[string]Receipt
	restLoaded  bool
	loading     bool
	typingFrom  string
	typingGen   uint64
	typingTimer *time.Timer
	offs        []func()
	started     bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewConversation(me, other string, deps Deps, opts Options) (*Conversation, error) {
	roomID, err := room.ID(me, other)
	if err != nil {
		return nil, err
	}
	if deps.Channel == nil || deps.API == nil {
		return nil, errs.ErrValidation.WrapMsg("conversation needs a channel and an api")
	}
	if deps.Cache == nil {
		if deps.Cache, err = NewMemoryCache(64); err != nil {
			return nil, err
		}
	}
	opts.norm()
	c := &Conversation{
		me:       me,
		other:    other,
		roomID:   roomID,
		deps:     deps,
		opts:     opts,
		updates:  make(chan struct{}, 1),
		receipts: make(map[string]Receipt),
		ctx:      context.Background(),
	}
	c.poller = NewPoller(c.poll, opts.OfflinePoll, opts.OnlinePoll)
	return c, nil
}

// Start subscribes to the room's events, joins when connected and loads the
// history. It returns once the first history load finished.
func (c *Conversation) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return errs.New("conversation already started", "room", c.roomID)
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	ch := c.deps.Channel
	offs := []func(){
		ch.On(event.KindHistory, c.onHistory),
		ch.On(event.KindMessageNew, c.onNew),
		ch.On(event.KindTyping, c.onTyping),
		ch.On(event.KindTypingStopped, c.onTypingStopped),
		ch.On(event.KindReadReceipt, c.onReadReceipt),
		ch.OnStatus(c.onStatus),
	}
	c.mu.Lock()
	c.offs = offs
	c.mu.Unlock()

	online := ch.Connected()
	if online {
		c.join()
	}
	c.loadHistory(c.ctx)
	c.poller.Start(c.ctx, online)
	return nil
}

func (c *Conversation) join() {
	if err := c.deps.Channel.Emit(event.KindJoin, event.JoinPayload{RoomID: c.roomID, OtherUserID: c.other}); err != nil {
		logger.Warn("join failed", zap.String("room", c.roomID), zap.Error(err))
	}
}

func (c *Conversation) onStatus(connected bool) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if connected {
		c.join()
	}
	c.poller.SetOnline(connected)
	notify(c.updates)
}

// loadHistory prefers REST and falls back to the local cache.
func (c *Conversation) loadHistory(ctx context.Context) {
	c.setLoading(true)
	defer c.setLoading(false)

	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	list, err := c.deps.API.History(fctx, c.other)
	cancel()
	if err == nil {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.messages = applyServer(c.messages, list, c.opts.DedupWindow)
		c.restLoaded = true
		snapshot := confirmedOnly(c.messages)
		c.mu.Unlock()
		c.writeCache(snapshot)
		notify(c.updates)
		return
	}

	logger.Warn("history fetch failed, using cache", zap.String("room", c.roomID), zap.Error(err))
	var cached []*model.Message
	ok, cerr := c.deps.Cache.Get(convoKey(c.me, c.other), &cached)
	if cerr != nil {
		logger.Warn("read conversation cache", zap.String("room", c.roomID), zap.Error(cerr))
	}
	if !ok || len(cached) == 0 {
		return
	}
	c.mu.Lock()
	if !c.closed && len(c.messages) == 0 {
		c.messages = mergeServer(c.messages, cached, c.opts.DedupWindow)
	}
	c.mu.Unlock()
	notify(c.updates)
}

func (c *Conversation) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
	notify(c.updates)
}

func decode[T any](data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Debug("drop undecodable event", zap.Error(err))
		return v, false
	}
	return v, true
}

// onHistory applies a realtime history. Once REST answered, its messages
// only fill gaps.
func (c *Conversation) onHistory(data json.RawMessage) {
	p, ok := decode[event.HistoryPayload](data)
	if !ok || p.RoomID != c.roomID {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.restLoaded {
		for _, m := range p.Messages {
			if m != nil {
				c.messages, _ = reconcile(c.messages, m, c.opts.DedupWindow)
			}
		}
	} else {
		c.messages = applyServer(c.messages, p.Messages, c.opts.DedupWindow)
	}
	snapshot := confirmedOnly(c.messages)
	c.mu.Unlock()
	c.writeCache(snapshot)
	notify(c.updates)
}

func (c *Conversation) onNew(data json.RawMessage) {
	p, ok := decode[event.MessageNewPayload](data)
	if !ok || p.RoomID != c.roomID || p.Message == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	out, accepted := reconcile(c.messages, p.Message, c.opts.DedupWindow)
	c.messages = out
	c.mu.Unlock()
	if !accepted {
		return
	}
	c.persist(p.Message)
	notify(c.updates)
}

func (c *Conversation) onTyping(data json.RawMessage) {
	p, ok := decode[event.TypingSignal](data)
	if !ok || p.RoomID != c.roomID || p.From == c.me {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.typingFrom = p.From
	c.typingGen++
	gen := c.typingGen
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.opts.TypingTTL, func() { c.expireTyping(gen) })
	c.mu.Unlock()
	notify(c.updates)
}

func (c *Conversation) expireTyping(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.typingGen {
		c.mu.Unlock()
		return
	}
	c.typingFrom = ""
	c.mu.Unlock()
	notify(c.updates)
}

func (c *Conversation) onTypingStopped(data json.RawMessage) {
	p, ok := decode[event.TypingSignal](data)
	if !ok || p.RoomID != c.roomID {
		return
	}
	c.mu.Lock()
	if c.closed || c.typingFrom != p.From {
		c.mu.Unlock()
		return
	}
	c.typingFrom = ""
	c.typingGen++
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.mu.Unlock()
	notify(c.updates)
}

func (c *Conversation) onReadReceipt(data json.RawMessage) {
	p, ok := decode[event.ReadReceiptPayload](data)
	if !ok || p.RoomID != c.roomID || p.MessageID == "" {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.receipts[p.MessageID] = Receipt{ReadBy: p.ReadBy, ReadAt: p.ReadAt}
	for i := range c.messages {
		if c.messages[i].ID == p.MessageID {
			c.messages[i].Read = true
		}
	}
	c.mu.Unlock()
	notify(c.updates)
}

// Send appends an optimistic entry at once, then hands the text to the
// socket, or to REST in the background when the socket is down. A failed
// send is logged and dropped; the entry stays until a poll settles it.
func (c *Conversation) Send(text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}
	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return Message{}, false
	}
	m := Message{
		Message: model.Message{
			ID:        tempPrefix + uuid.NewString(),
			From:      c.me,
			To:        c.other,
			Text:      text,
			RoomID:    c.roomID,
			CreatedAt: c.opts.Now().UTC(),
		},
		Optimistic: true,
	}
	c.messages = append(c.messages, m)
	ctx := c.ctx
	c.mu.Unlock()
	notify(c.updates)

	ch := c.deps.Channel
	if ch.Connected() {
		err := ch.Emit(event.KindSend, event.SendPayload{RoomID: c.roomID, To: c.other, Text: text})
		if err == nil {
			return m, true
		}
		logger.Warn("realtime send failed, using rest", zap.String("room", c.roomID), zap.Error(err))
	}
	safe.SafeGo(func() {
		sctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
		if _, err := c.deps.API.Send(sctx, c.other, text); err != nil {
			logger.Warn("rest send failed", zap.String("room", c.roomID), zap.Error(err))
		}
	})
	return m, true
}

func (c *Conversation) NotifyTyping() { c.emitTyping(event.KindTypingStart) }

func (c *Conversation) StopTyping() { c.emitTyping(event.KindTypingStop) }

func (c *Conversation) emitTyping(kind event.Kind) {
	ch := c.deps.Channel
	if !ch.Connected() {
		return
	}
	if err := ch.Emit(kind, event.TypingPayload{RoomID: c.roomID, To: c.other}); err != nil {
		logger.Debug("typing emit failed", zap.String("room", c.roomID), zap.Error(err))
	}
}

// readable: a confirmed message to me, listed and not read yet.
func (c *Conversation) readable(m *Message) bool {
	if m.Optimistic || m.To != c.me || m.Read {
		return false
	}
	_, done := c.receipts[m.ID]
	return !done
}

// MarkRead asks the server to mark one visible message read. It reports
// whether a request went out.
func (c *Conversation) MarkRead(messageID string) bool {
	ch := c.deps.Channel
	if messageID == "" || !ch.Connected() {
		return false
	}
	c.mu.Lock()
	found := false
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			found = c.readable(&c.messages[i])
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return false
	}
	return c.emitRead(messageID)
}

// MarkVisibleRead marks every readable message and returns how many
// requests went out.
func (c *Conversation) MarkVisibleRead() int {
	if !c.deps.Channel.Connected() {
		return 0
	}
	c.mu.Lock()
	var ids []string
	for i := range c.messages {
		if c.readable(&c.messages[i]) {
			ids = append(ids, c.messages[i].ID)
		}
	}
	c.mu.Unlock()
	n := 0
	for _, id := range ids {
		if c.emitRead(id) {
			n++
		}
	}
	return n
}

func (c *Conversation) emitRead(id string) bool {
	if err := c.deps.Channel.Emit(event.KindReadRequest, event.ReadPayload{MessageID: id, RoomID: c.roomID}); err != nil {
		logger.Debug("read emit failed", zap.String("message", id), zap.Error(err))
		return false
	}
	return true
}

// poll replaces the list only while offline or when it is still empty, so a
// stale fetch never rolls back live updates.
func (c *Conversation) poll(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	list, err := c.deps.API.History(fctx, c.other)
	cancel()
	if err != nil {
		logger.Debug("poll failed", zap.String("room", c.roomID), zap.Error(err))
		return
	}
	online := c.deps.Channel.Connected()
	c.mu.Lock()
	if c.closed || (online && len(c.messages) > 0) {
		c.mu.Unlock()
		return
	}
	c.messages = applyServer(c.messages, list, c.opts.DedupWindow)
	snapshot := confirmedOnly(c.messages)
	c.mu.Unlock()
	c.writeCache(snapshot)
	notify(c.updates)
}

// Visible polls right away, as a browser tab coming back does.
func (c *Conversation) Visible() { c.poller.Trigger() }

func (c *Conversation) writeCache(list []*model.Message) {
	if err := c.deps.Cache.Set(convoKey(c.me, c.other), list); err != nil {
		logger.Warn("write conversation cache", zap.String("room", c.roomID), zap.Error(err))
	}
}

// persist adds one confirmed message to the conversation cache and moves
// the room to the top of the cached index.
func (c *Conversation) persist(m *model.Message) {
	key := convoKey(c.me, c.other)
	var cached []*model.Message
	if _, err := c.deps.Cache.Get(key, &cached); err != nil {
		logger.Warn("read conversation cache", zap.String("room", c.roomID), zap.Error(err))
	}
	present := false
	for _, e := range cached {
		if e != nil && e.ID == m.ID {
			present = true
			break
		}
	}
	if !present {
		c.writeCache(append(cached, m))
	}

	var index []model.ConversationSummary
	if _, err := c.deps.Cache.Get(indexKey(c.me), &index); err != nil {
		logger.Warn("read conversation index", zap.String("user", c.me), zap.Error(err))
	}
	row := model.ConversationSummary{RoomID: c.roomID, OtherUserID: c.other}
	next := make([]model.ConversationSummary, 0, len(index)+1)
	for _, s := range index {
		if s.OtherUserID == c.other {
			row = s
			continue
		}
		next = append(next, s)
	}
	row.RoomID = c.roomID
	row.LastMessage = m
	next = append([]model.ConversationSummary{row}, next...)
	if err := c.deps.Cache.Set(indexKey(c.me), next); err != nil {
		logger.Warn("write conversation index", zap.String("user", c.me), zap.Error(err))
	}
}

// Close detaches handlers, stops timers and leaves the room. Results that
// land afterwards are ignored.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	offs := c.offs
	c.offs = nil
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	started, cancel := c.started, c.cancel
	c.mu.Unlock()

	for _, off := range offs {
		off()
	}
	c.poller.Stop()
	if cancel != nil {
		cancel()
	}
	if started && c.deps.Channel.Connected() {
		if err := c.deps.Channel.Emit(event.KindLeave, event.LeavePayload{RoomID: c.roomID}); err != nil {
			logger.Debug("leave emit failed", zap.String("room", c.roomID), zap.Error(err))
		}
	}
}

func (c *Conversation) RoomID() string { return c.roomID }

// Updates fires, coalesced, whenever visible state changed.
func (c *Conversation) Updates() <-chan struct{} { return c.updates }

func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Conversation) TypingFrom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typingFrom
}

func (c *Conversation) Receipts() map[string]Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Receipt, len(c.receipts))
	for k, v := range c.receipts {
		out[k] = v
	}
	return out
}

func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}
