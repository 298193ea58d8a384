package event

import (
	"PShare/module/chat/model"
	"time"
)

// client -> server

type JoinPayload struct {
	RoomID      string `json:"roomId"`
	OtherUserID string `json:"otherUserId,omitempty"`
}

type LeavePayload struct {
	RoomID string `json:"roomId"`
}

type SendPayload struct {
	RoomID string `json:"roomId"`
	To     string `json:"to"`
	Text   string `json:"text"`
}

// TypingPayload is shared by typing:start and typing:stop.
type TypingPayload struct {
	RoomID string `json:"roomId"`
	To     string `json:"to,omitempty"`
}

type ReadPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

type OnlinePayload struct{}

// server -> client

type HistoryPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []*model.Message `json:"messages"`
}

type MessageNewPayload struct {
	RoomID  string         `json:"roomId"`
	Message *model.Message `json:"message"`
}

type NotificationPayload struct {
	Message *model.Message     `json:"message"`
	From    *model.UserSummary `json:"from"`
}

// TypingSignal is the payload of both "typing" and the outbound "typing:stop".
type TypingSignal struct {
	RoomID string `json:"roomId"`
	From   string `json:"from"`
}

type ReadReceiptPayload struct {
	MessageID string    `json:"messageId"`
	RoomID    string    `json:"roomId"`
	ReadBy    string    `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type InterestPayload struct {
	ItemID         string             `json:"itemId"`
	ItemTitle      string             `json:"itemTitle"`
	InterestedUser *model.UserSummary `json:"interestedUser"`
	Message        string             `json:"message"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type UserStatusPayload struct {
	UserID string             `json:"userId"`
	Status string             `json:"status"`
	User   *model.UserSummary `json:"user,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Event   string `json:"event,omitempty"`
}
