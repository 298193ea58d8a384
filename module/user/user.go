// Package user is the read side of the account collaborator: the chat
// service only needs to know that a user exists and how to display them.
package user

import (
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"sync"
)

// Directory resolves user ids to public summaries. Lookup returns an error
// matching errs.ErrNotFound when the id is unknown.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*model.UserSummary, error)
}

// MemoryDirectory is a Directory backed by a map, for tests and the
// memory store driver.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]model.UserSummary
}

func NewMemoryDirectory(users ...model.UserSummary) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]model.UserSummary, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Put(u model.UserSummary) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (*model.UserSummary, error) {
	d.mu.RLock()
	u, ok := d.users[userID]
	d.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user", "id", userID)
	}
	return &u, nil
}
