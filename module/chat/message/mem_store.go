package message

import (
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"sort"
	"sync"
)

var ErrDuplicateID = errs.NewCodeError(errs.ValidationError, "duplicate message id")

// MemoryStore keeps every message in process. Rooms hold their messages in
// (createdAt, id) order, so reads never sort.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*model.Message   // id -> msg
	byRoom map[string][]*model.Message // roomId -> ordered msgs
	byUser map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*model.Message),
		byRoom: make(map[string][]*model.Message),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (db *MemoryStore) Insert(_ context.Context, m *model.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.byID[m.ID]; ok {
		return ErrDuplicateID.WrapMsg("", "id", m.ID)
	}
	c := m.Clone()
	db.byID[c.ID] = c

	list := db.byRoom[c.RoomID]
	i := sort.Search(len(list), func(i int) bool { return c.Before(list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = c
	db.byRoom[c.RoomID] = list

	for _, u := range []string{c.From, c.To} {
		rooms := db.byUser[u]
		if rooms == nil {
			rooms = make(map[string]struct{})
			db.byUser[u] = rooms
		}
		rooms[c.RoomID] = struct{}{}
	}
	return nil
}

func (db *MemoryStore) Get(_ context.Context, id string) (*model.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	m, ok := db.byID[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("message", "id", id)
	}
	return m.Clone(), nil
}

func (db *MemoryStore) ListRoom(_ context.Context, roomID string, limit int) ([]*model.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	list := db.byRoom[roomID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]*model.Message, len(list))
	for i, m := range list {
		out[i] = m.Clone()
	}
	return out, nil
}

func (db *MemoryStore) LastPerRoom(_ context.Context, userID string) ([]*model.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*model.Message, 0, len(db.byUser[userID]))
	for roomID := range db.byUser[userID] {
		list := db.byRoom[roomID]
		if len(list) > 0 {
			out = append(out, list[len(list)-1].Clone())
		}
	}
	return out, nil
}

func (db *MemoryStore) UnreadByRoom(_ context.Context, userID string) (map[string]int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[string]int64)
	for roomID := range db.byUser[userID] {
		for _, m := range db.byRoom[roomID] {
			if m.To == userID && !m.Read {
				out[roomID]++
			}
		}
	}
	return out, nil
}

func (db *MemoryStore) MarkRoomRead(_ context.Context, roomID, recipientID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for _, m := range db.byRoom[roomID] {
		if m.To == recipientID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (db *MemoryStore) MarkOneRead(_ context.Context, id, recipientID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.byID[id]
	if !ok {
		return false, errs.ErrNotFound.WrapMsg("message", "id", id)
	}
	if m.To != recipientID {
		return false, errs.ErrAuthorization.WrapMsg("not the recipient", "messageId", id)
	}
	if m.Read {
		return false, nil
	}
	m.Read = true
	return true, nil
}
