package chat

import (
	"PShare/module/chat/event"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePresence struct {
	mu         sync.Mutex
	refreshed  []string
	offlineErr error
}

func (p *fakePresence) Online(context.Context, string, string) (bool, error) { return true, nil }

func (p *fakePresence) Offline(context.Context, string, string) (int64, error) {
	return 0, p.offlineErr
}

func (p *fakePresence) IsOnline(context.Context, string) (bool, error) { return true, nil }

func (p *fakePresence) Refresh(_ context.Context, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshed = append(p.refreshed, userID+"/"+connID)
	return nil
}

func (p *fakePresence) refreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refreshed)
}

func TestPresenceKeeperRenewsLongLivedConnection(t *testing.T) {
	fp := &fakePresence{}
	s := NewServer(Conf{NodeID: "n1", PresenceRefresh: time.Hour}, nil, nil, WithPresence(fp))
	c := testConn("c1", "u1")

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ping := s.presenceKeeper(context.Background(), c, t0)

	ping(t0.Add(10 * time.Minute))
	if n := fp.refreshCount(); n != 0 {
		t.Fatalf("refreshed %d times before the interval", n)
	}
	ping(t0.Add(61 * time.Minute))
	if n := fp.refreshCount(); n != 1 {
		t.Fatalf("refreshed %d times after one interval, want 1", n)
	}
	ping(t0.Add(70 * time.Minute))
	if n := fp.refreshCount(); n != 1 {
		t.Fatalf("second ping inside the interval refreshed again")
	}
	// a connection open well past the presence TTL keeps renewing
	ping(t0.Add(125 * time.Minute))
	ping(t0.Add(190 * time.Minute))
	if n := fp.refreshCount(); n != 3 {
		t.Fatalf("refreshed %d times over three hours, want 3", n)
	}
	if fp.refreshed[0] != "u1/c1" {
		t.Fatalf("refreshed %q", fp.refreshed[0])
	}
}

func TestCloseConnAnnouncesOfflineWhenPresenceFails(t *testing.T) {
	fp := &fakePresence{offlineErr: errors.New("redis down")}
	s := NewServer(Conf{NodeID: "n1"}, nil, nil, WithPresence(fp))
	leaving, watcher := testConn("c1", "u1"), testConn("c2", "u2")
	s.hub.add(leaving)
	s.hub.add(watcher)

	s.closeConn(leaving)

	if len(watcher.send) != 1 {
		t.Fatalf("watcher got %d frames, want 1", len(watcher.send))
	}
	var f struct {
		Event string                  `json:"event"`
		Data  event.UserStatusPayload `json:"data"`
	}
	if err := json.Unmarshal(<-watcher.send, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Event != "user:status" || f.Data.UserID != "u1" || f.Data.Status != event.StatusOffline {
		t.Fatalf("frame = %+v", f)
	}
}

func TestCloseConnKeepsUserOnlineWithOtherLocalConn(t *testing.T) {
	fp := &fakePresence{offlineErr: errors.New("redis down")}
	s := NewServer(Conf{NodeID: "n1"}, nil, nil, WithPresence(fp))
	a, b, watcher := testConn("c1", "u1"), testConn("c2", "u1"), testConn("c3", "u2")
	for _, c := range []*Conn{a, b, watcher} {
		s.hub.add(c)
	}

	s.closeConn(a)

	if len(watcher.send) != 0 || len(b.send) != 0 {
		t.Fatalf("offline announced while u1 still has a connection")
	}
}

func TestConfClampsHistoryLimit(t *testing.T) {
	cases := map[int]int{0: 50, -3: 50, 20: 20, 50: 50, 500: 50}
	for in, want := range cases {
		c := Conf{HistoryLimit: in}
		c.norm()
		if c.HistoryLimit != want {
			t.Fatalf("HistoryLimit %d -> %d, want %d", in, c.HistoryLimit, want)
		}
	}
	c := Conf{}
	c.norm()
	if c.PresenceRefresh != time.Hour {
		t.Fatalf("PresenceRefresh default = %v", c.PresenceRefresh)
	}
}
