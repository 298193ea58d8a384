package message

import (
	"PShare/module/chat/model"
	"context"
)

// Store is the persistence port of the message log. Implementations keep
// messages immutable except for the read flag and must return ErrNotFound
// (errs.ErrNotFound) from Get for unknown ids.
type Store interface {
	Insert(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)

	// ListRoom returns a room ascending by (createdAt, id). limit > 0 keeps
	// only the most recent limit messages.
	ListRoom(ctx context.Context, roomID string, limit int) ([]*model.Message, error)

	// LastPerRoom returns, for every room the user is part of, the message
	// with the greatest (createdAt, id).
	LastPerRoom(ctx context.Context, userID string) ([]*model.Message, error)

	// UnreadByRoom counts unread messages addressed to userID, per room.
	UnreadByRoom(ctx context.Context, userID string) (map[string]int64, error)

	// MarkRoomRead flips read on unread messages to recipientID in roomID
	// and returns how many changed.
	MarkRoomRead(ctx context.Context, roomID, recipientID string) (int64, error)

	// MarkOneRead flips read on one message when it is addressed to
	// recipientID. changed is false when it already was read.
	MarkOneRead(ctx context.Context, id, recipientID string) (changed bool, err error)
}
