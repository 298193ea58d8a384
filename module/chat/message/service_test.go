package message

import (
	"PShare/module/chat/model"
	"PShare/module/user"
	"PShare/tools/errs"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, now func() time.Time) (*Service, *MemoryStore) {
	t.Helper()
	dir := user.NewMemoryDirectory(
		model.UserSummary{ID: "u1", Name: "Ann"},
		model.UserSummary{ID: "u2", Name: "Bob"},
		model.UserSummary{ID: "u3", Name: "Cid"},
	)
	st := NewMemoryStore()
	var opts []Option
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	return NewService(st, dir, opts...), st
}

func TestAppendAndHistoryOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, nil)

	m, err := s.Append(ctx, "u1", "u2", "  hello ")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m.RoomID != "room:u1:u2" || m.Text != "hello" || m.Read {
		t.Fatalf("unexpected message %+v", m)
	}
	for i := 0; i < 5; i++ {
		from, to := "u1", "u2"
		if i%2 == 1 {
			from, to = to, from
		}
		if _, err := s.Append(ctx, from, to, "msg"); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	list, err := s.History(ctx, "room:u1:u2", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(list) != 6 || list[0].ID != m.ID {
		t.Fatalf("history len=%d first=%s", len(list), list[0].ID)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.Before(list[i-1].CreatedAt) || list[i].ID <= list[i-1].ID {
			t.Fatalf("history out of order at %d", i)
		}
	}

	recent, _ := s.History(ctx, "room:u1:u2", 2)
	if len(recent) != 2 || recent[1].ID != list[5].ID || recent[0].ID != list[4].ID {
		t.Fatalf("limited history should be the two newest, ascending")
	}
}

func TestHistoryEmptyRoomIsNotNil(t *testing.T) {
	s, _ := newTestService(t, nil)
	list, err := s.History(context.Background(), "room:u1:u3", 50)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("got %v, %v", list, err)
	}
	if _, err := s.History(context.Background(), "bogus", 50); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("malformed room err = %v", err)
	}
}

func TestClockNeverGoesBackwards(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Millisecond)}
	i := 0
	s, _ := newTestService(t, func() time.Time {
		v := ticks[i%len(ticks)]
		i++
		return v
	})
	ctx := context.Background()
	a, _ := s.Append(ctx, "u1", "u2", "a")
	b, _ := s.Append(ctx, "u1", "u2", "b")
	c, _ := s.Append(ctx, "u1", "u2", "c")
	if b.CreatedAt.Before(a.CreatedAt) || c.CreatedAt.Before(b.CreatedAt) {
		t.Fatalf("timestamps went backwards: %v %v %v", a.CreatedAt, b.CreatedAt, c.CreatedAt)
	}
	list, _ := s.History(ctx, a.RoomID, 0)
	if list[0].Text != "a" || list[1].Text != "b" || list[2].Text != "c" {
		t.Fatalf("order = %s%s%s", list[0].Text, list[1].Text, list[2].Text)
	}
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, nil)

	cases := []struct {
		name     string
		from, to string
		text     string
		want     error
	}{
		{"blank text", "u1", "u2", "   ", errs.ErrValidation},
		{"too long", "u1", "u2", strings.Repeat("x", model.MaxTextLength+1), errs.ErrValidation},
		{"self", "u1", "u1", "hi", errs.ErrValidation},
		{"missing recipient", "u1", "", "hi", errs.ErrValidation},
		{"unknown recipient", "u1", "ghost", "hi", errs.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := s.Append(ctx, tc.from, tc.to, tc.text); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	if _, err := s.Append(ctx, "u1", "u2", strings.Repeat("é", model.MaxTextLength)); err != nil {
		t.Fatalf("1000 runes should be accepted: %v", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, nil)
	s.Append(ctx, "u1", "u2", "one")
	s.Append(ctx, "u1", "u2", "two")
	s.Append(ctx, "u2", "u1", "reply")

	n, err := s.MarkReadWith(ctx, "u2", "u1")
	if err != nil || n != 2 {
		t.Fatalf("first MarkRead = %d, %v", n, err)
	}
	n, err = s.MarkReadWith(ctx, "u2", "u1")
	if err != nil || n != 0 {
		t.Fatalf("second MarkRead = %d, %v", n, err)
	}

	list, _ := s.HistoryWith(ctx, "u1", "u2")
	for _, m := range list {
		if m.To == "u2" && !m.Read {
			t.Fatalf("message %s to u2 still unread", m.ID)
		}
		if m.To == "u1" && m.Read {
			t.Fatalf("message %s to u1 should stay unread", m.ID)
		}
	}

	if _, err := s.MarkRead(ctx, "room:u1:u2", "u3"); !errors.Is(err, errs.ErrAuthorization) {
		t.Fatalf("outsider MarkRead err = %v", err)
	}
}

func TestMarkOneRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, nil)
	m, _ := s.Append(ctx, "u1", "u2", "hello")

	got, err := s.MarkOneRead(ctx, m.ID, m.RoomID, "u2")
	if err != nil || !got.Read {
		t.Fatalf("MarkOneRead: %+v, %v", got, err)
	}
	if _, err := s.MarkOneRead(ctx, m.ID, m.RoomID, "u2"); err != nil {
		t.Fatalf("repeat MarkOneRead: %v", err)
	}
	stored, _ := s.Get(ctx, m.ID)
	if !stored.Read {
		t.Fatalf("stored message not read")
	}

	if _, err := s.MarkOneRead(ctx, m.ID, m.RoomID, "u1"); !errors.Is(err, errs.ErrAuthorization) {
		t.Fatalf("sender marking own message err = %v", err)
	}
	if _, err := s.MarkOneRead(ctx, m.ID, "room:u1:u2", "u3"); !errors.Is(err, errs.ErrAuthorization) {
		t.Fatalf("outsider err = %v", err)
	}
	if _, err := s.MarkOneRead(ctx, "nope", m.RoomID, "u2"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
	if _, err := s.MarkOneRead(ctx, "", m.RoomID, "u2"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("blank id err = %v", err)
	}

	other, _ := s.Append(ctx, "u3", "u2", "elsewhere")
	if _, err := s.MarkOneRead(ctx, other.ID, m.RoomID, "u2"); !errors.Is(err, errs.ErrAuthorization) {
		t.Fatalf("message from another room err = %v", err)
	}
}

func TestConversationsFor(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	s, _ := newTestService(t, func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	})

	s.Append(ctx, "u2", "u1", "from bob 1")
	s.Append(ctx, "u2", "u1", "from bob 2")
	s.Append(ctx, "u3", "u1", "from cid")
	last, _ := s.Append(ctx, "u1", "u2", "to bob")

	convos, err := s.ConversationsFor(ctx, "u1")
	if err != nil {
		t.Fatalf("ConversationsFor: %v", err)
	}
	if len(convos) != 2 {
		t.Fatalf("got %d conversations", len(convos))
	}
	top := convos[0]
	if top.RoomID != "room:u1:u2" || top.OtherUserID != "u2" || top.LastMessage.ID != last.ID {
		t.Fatalf("top conversation %+v", top)
	}
	if top.OtherUser == nil || top.OtherUser.Name != "Bob" {
		t.Fatalf("other user not resolved: %+v", top.OtherUser)
	}
	if top.UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", top.UnreadCount)
	}
	if convos[1].OtherUserID != "u3" || convos[1].UnreadCount != 1 {
		t.Fatalf("second conversation %+v", convos[1])
	}

	bob, _ := s.ConversationsFor(ctx, "u2")
	if len(bob) != 1 || bob[0].UnreadCount != 1 {
		t.Fatalf("bob's view %+v", bob)
	}

	s.MarkReadWith(ctx, "u1", "u2")
	convos, _ = s.ConversationsFor(ctx, "u1")
	if convos[0].UnreadCount != 0 {
		t.Fatalf("unread after MarkRead = %d", convos[0].UnreadCount)
	}
}

func TestLastMessageTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, func() time.Time { return fixed })
	s.Append(ctx, "u1", "u2", "first")
	second, _ := s.Append(ctx, "u1", "u2", "second")

	convos, _ := s.ConversationsFor(ctx, "u1")
	if convos[0].LastMessage.ID != second.ID {
		t.Fatalf("last message = %s, want %s", convos[0].LastMessage.Text, second.Text)
	}
}

func TestMemoryStoreRejectsDuplicateID(t *testing.T) {
	st := NewMemoryStore()
	m := &model.Message{ID: "1", From: "a", To: "b", RoomID: "room:a:b", Text: "x"}
	if err := st.Insert(context.Background(), m); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := st.Insert(context.Background(), m); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate err = %v", err)
	}
}
