package storage

import (
	"context"
	"sync"
)

// Presence tracks live connections per user. A user is online while at
// least one connection id is registered.
type Presence interface {
	// Online registers connID. first is true when it is the user's only
	// live connection.
	Online(ctx context.Context, userID, connID string) (first bool, err error)
	// Offline removes connID and reports how many connections remain.
	Offline(ctx context.Context, userID, connID string) (remaining int64, err error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	// Refresh keeps a live connection's registration from expiring.
	Refresh(ctx context.Context, userID, connID string) error
}

// MemoryPresence is the single node Presence.
type MemoryPresence struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[string]map[string]struct{})}
}

func (p *MemoryPresence) Online(_ context.Context, userID, connID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.conns[userID]
	if set == nil {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	set[connID] = struct{}{}
	return len(set) == 1, nil
}

func (p *MemoryPresence) Offline(_ context.Context, userID, connID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.conns[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(p.conns, userID)
		return 0, nil
	}
	return int64(len(set)), nil
}

func (p *MemoryPresence) IsOnline(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[userID]) > 0, nil
}

// Refresh is a no-op: memory entries live until Offline.
func (p *MemoryPresence) Refresh(context.Context, string, string) error { return nil }
