package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"PShare/module/chat/room"
	"PShare/tools/errs"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// seenCap bounds the message ids the inbox remembers for dedup.
const seenCap = 1024

// Inbox keeps one summary row per counterpart, most recent first.
type Inbox struct {
	me      string
	deps    Deps
	timeout time.Duration
	updates chan struct{}

	mu       sync.Mutex
	list     []model.ConversationSummary
	seen     map[string]struct{}
	seenRing []string
	offs     []func()
	// pending holds live messages per room while the REST fetch is in
	// flight; nil otherwise.
	pending map[string][]*model.Message
	closed  bool
}

func NewInbox(me string, deps Deps, opts Options) (*Inbox, error) {
	if me == "" {
		return nil, errs.ErrValidation.WrapMsg("inbox needs a user id")
	}
	if deps.Channel == nil || deps.API == nil {
		return nil, errs.ErrValidation.WrapMsg("inbox needs a channel and an api")
	}
	if deps.Cache == nil {
		c, err := NewMemoryCache(64)
		if err != nil {
			return nil, err
		}
		deps.Cache = c
	}
	opts.norm()
	return &Inbox{
		me:      me,
		deps:    deps,
		timeout: opts.FetchTimeout,
		updates: make(chan struct{}, 1),
		seen:    make(map[string]struct{}),
	}, nil
}

// Start seeds from the cache, then REST, then, if both came back empty, the
// users interested in my items.
func (in *Inbox) Start(ctx context.Context) error {
	var cached []model.ConversationSummary
	if ok, err := in.deps.Cache.Get(indexKey(in.me), &cached); err != nil {
		logger.Warn("read inbox cache", zap.String("user", in.me), zap.Error(err))
	} else if ok {
		in.mu.Lock()
		in.list = cached
		in.mu.Unlock()
		notify(in.updates)
	}

	ch := in.deps.Channel
	offs := []func(){
		ch.On(event.KindMessageNew, in.onMessageNew),
		ch.On(event.KindNotification, in.onNotification),
		ch.On(event.KindReadReceipt, in.onReadReceipt),
	}
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		for _, off := range offs {
			off()
		}
		return errs.New("inbox closed")
	}
	in.offs = offs
	in.pending = make(map[string][]*model.Message)
	in.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, in.timeout)
	list, err := in.deps.API.Conversations(fctx)
	cancel()
	if err != nil {
		logger.Warn("conversations fetch failed", zap.String("user", in.me), zap.Error(err))
		in.mu.Lock()
		in.pending = nil
		in.mu.Unlock()
	} else {
		in.merge(list)
	}

	if in.empty() && in.deps.Interests != nil {
		in.fromInterests(ctx)
	}
	return nil
}

func (in *Inbox) replace(list []model.ConversationSummary) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	if list == nil {
		list = []model.ConversationSummary{}
	}
	in.list = list
	in.mu.Unlock()
	in.persist()
	notify(in.updates)
}

// merge installs a REST snapshot. Rooms that saw live messages newer than
// the snapshot's last message keep them, with their unread increments, and
// stay in front.
func (in *Inbox) merge(list []model.ConversationSummary) {
	in.mu.Lock()
	pending := in.pending
	in.pending = nil
	if in.closed {
		in.mu.Unlock()
		return
	}
	var fresh []model.ConversationSummary
	rest := make([]model.ConversationSummary, 0, len(list))
	for _, row := range list {
		msgs, ok := pending[row.RoomID]
		if !ok {
			rest = append(rest, row)
			continue
		}
		delete(pending, row.RoomID)
		if merged, newer := in.overlay(row, msgs); newer {
			fresh = append(fresh, merged)
		} else {
			rest = append(rest, row)
		}
	}
	// rooms the snapshot does not know yet
	for roomID, msgs := range pending {
		row := model.ConversationSummary{RoomID: roomID}
		for _, s := range in.list {
			if s.RoomID == roomID {
				row.OtherUserID, row.OtherUser = s.OtherUserID, s.OtherUser
				break
			}
		}
		if row.OtherUserID == "" {
			row.OtherUserID = msgs[0].From
			if row.OtherUserID == in.me {
				row.OtherUserID = msgs[0].To
			}
		}
		row, _ = in.overlay(row, msgs)
		fresh = append(fresh, row)
	}
	sort.Slice(fresh, func(i, j int) bool {
		return after(fresh[i].LastMessage, fresh[j].LastMessage)
	})
	in.list = append(append(make([]model.ConversationSummary, 0, len(fresh)+len(rest)), fresh...), rest...)
	in.mu.Unlock()
	in.persist()
	notify(in.updates)
}

// overlay applies the live msgs that are newer than row's last message.
func (in *Inbox) overlay(row model.ConversationSummary, msgs []*model.Message) (model.ConversationSummary, bool) {
	base := row.LastMessage
	newer := false
	for _, m := range msgs {
		if base != nil && !after(m, base) {
			continue
		}
		if m.To == in.me && !m.Read {
			row.UnreadCount++
		}
		if !newer || after(m, row.LastMessage) {
			row.LastMessage = m
		}
		newer = true
	}
	return row, newer
}

// after orders messages by (createdAt, id).
func after(a, b *model.Message) bool {
	if a == nil || b == nil {
		return b == nil && a != nil
	}
	return b.Before(a)
}

func (in *Inbox) empty() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.list) == 0
}

// fromInterests builds bare rows for users who showed interest in my items.
func (in *Inbox) fromInterests(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, in.timeout)
	users, err := in.deps.Interests.InterestedUsers(fctx)
	cancel()
	if err != nil {
		logger.Warn("interest fallback failed", zap.String("user", in.me), zap.Error(err))
		return
	}
	seen := map[string]struct{}{in.me: {}}
	var rows []model.ConversationSummary
	for _, u := range users {
		if u == nil || u.ID == "" {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		roomID, err := room.ID(in.me, u.ID)
		if err != nil {
			continue
		}
		rows = append(rows, model.ConversationSummary{RoomID: roomID, OtherUserID: u.ID, OtherUser: u})
	}
	if len(rows) == 0 {
		return
	}
	in.replace(rows)
}

func (in *Inbox) onMessageNew(data json.RawMessage) {
	p, ok := decode[event.MessageNewPayload](data)
	if !ok || p.Message == nil {
		return
	}
	in.apply(p.Message, nil)
}

func (in *Inbox) onNotification(data json.RawMessage) {
	p, ok := decode[event.NotificationPayload](data)
	if !ok || p.Message == nil {
		return
	}
	in.apply(p.Message, p.From)
}

// apply moves the message's room to the front. The same message reaching
// us on the room and the personal channel counts once.
func (in *Inbox) apply(m *model.Message, from *model.UserSummary) {
	if m.From != in.me && m.To != in.me {
		return
	}
	other := m.From
	if other == in.me {
		other = m.To
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	if _, dup := in.seen[m.ID]; dup {
		in.mu.Unlock()
		return
	}
	in.remember(m.ID)

	row := model.ConversationSummary{RoomID: m.RoomID, OtherUserID: other}
	rest := make([]model.ConversationSummary, 0, len(in.list)+1)
	for _, s := range in.list {
		if s.OtherUserID == other || (s.RoomID != "" && s.RoomID == m.RoomID) {
			row = s
			continue
		}
		rest = append(rest, s)
	}
	if row.RoomID == "" {
		row.RoomID = m.RoomID
	}
	row.OtherUserID = other
	row.LastMessage = m
	if m.To == in.me && !m.Read {
		row.UnreadCount++
	}
	if row.OtherUser == nil && from != nil && from.ID == other {
		row.OtherUser = from
	}
	if in.pending != nil {
		in.pending[row.RoomID] = append(in.pending[row.RoomID], m)
	}
	in.list = append([]model.ConversationSummary{row}, rest...)
	in.mu.Unlock()

	in.persist()
	notify(in.updates)
}

func (in *Inbox) remember(id string) {
	if len(in.seenRing) >= seenCap {
		delete(in.seen, in.seenRing[0])
		in.seenRing = in.seenRing[1:]
	}
	in.seen[id] = struct{}{}
	in.seenRing = append(in.seenRing, id)
}

// onReadReceipt drops the badge by one when I read a message elsewhere.
func (in *Inbox) onReadReceipt(data json.RawMessage) {
	p, ok := decode[event.ReadReceiptPayload](data)
	if !ok || p.ReadBy != in.me {
		return
	}
	in.mu.Lock()
	changed := false
	for i := range in.list {
		if in.list[i].RoomID == p.RoomID {
			if in.list[i].UnreadCount > 0 {
				in.list[i].UnreadCount--
				changed = true
			}
			break
		}
	}
	in.mu.Unlock()
	if changed {
		in.persist()
		notify(in.updates)
	}
}

// MarkRead marks the whole room with otherUserID read on the server and
// zeroes its count.
func (in *Inbox) MarkRead(ctx context.Context, otherUserID string) (int64, error) {
	n, err := in.deps.API.MarkRead(ctx, otherUserID)
	if err != nil {
		return 0, err
	}
	in.mu.Lock()
	for i := range in.list {
		if in.list[i].OtherUserID == otherUserID {
			in.list[i].UnreadCount = 0
		}
	}
	in.mu.Unlock()
	in.persist()
	notify(in.updates)
	return n, nil
}

func (in *Inbox) persist() {
	snapshot := in.Summaries()
	if err := in.deps.Cache.Set(indexKey(in.me), snapshot); err != nil {
		logger.Warn("write inbox cache", zap.String("user", in.me), zap.Error(err))
	}
}

// TotalUnread is the unread badge.
func (in *Inbox) TotalUnread() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	var n int64
	for _, s := range in.list {
		n += s.UnreadCount
	}
	return n
}

func (in *Inbox) Summaries() []model.ConversationSummary {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]model.ConversationSummary(nil), in.list...)
}

func (in *Inbox) Updates() <-chan struct{} { return in.updates }

func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	offs := in.offs
	in.offs = nil
	in.mu.Unlock()
	for _, off := range offs {
		off()
	}
}
