package model

import (
	"time"
)

const (
	MessageTableName = "messages"
	MaxTextLength    = 1000
)

// Message is one directed, persisted text. Everything except Read is
// immutable after the store accepts it.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	From      string    `bson:"from" json:"from"`
	To        string    `bson:"to" json:"to"`
	Text      string    `bson:"text" json:"text"`
	RoomID    string    `bson:"roomId" json:"roomId"`
	Read      bool      `bson:"read" json:"read"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (Message) TableName() string {
	return MessageTableName
}

// Before orders messages by (createdAt, id).
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// Clone returns a copy the caller may mutate.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// UserSummary is the public profile slice embedded in notifications and
// conversation lists.
type UserSummary struct {
	ID             string `bson:"_id" json:"id"`
	Name           string `bson:"name" json:"name,omitempty"`
	UserName       string `bson:"userName" json:"userName,omitempty"`
	ProfilePicture string `bson:"profilePicture" json:"profilePicture,omitempty"`
}

// ConversationSummary is one inbox row. It is derived, never stored.
type ConversationSummary struct {
	RoomID      string       `json:"roomId"`
	OtherUserID string       `json:"otherUserId"`
	OtherUser   *UserSummary `json:"otherUser,omitempty"`
	LastMessage *Message     `json:"lastMessage,omitempty"`
	UnreadCount int64        `json:"unreadCount"`
}
