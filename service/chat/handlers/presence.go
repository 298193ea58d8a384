package handlers

import (
	"PShare/module/chat/event"
	"PShare/module/chat/room"
	"PShare/service/chat"
	"context"
)

// typing:start and typing:stop share everything but the outbound kind.
type typingHandler struct {
	s   *chat.Server
	in  event.Kind
	out event.Kind
}

func NewTypingStartHandler(s *chat.Server) chat.Handler {
	return &typingHandler{s: s, in: event.KindTypingStart, out: event.KindTyping}
}

func NewTypingStopHandler(s *chat.Server) chat.Handler {
	return &typingHandler{s: s, in: event.KindTypingStop, out: event.KindTypingStopped}
}

func (h *typingHandler) Kind() event.Kind { return h.in }

// Handle relays the signal to the room's other subscribers. Nothing is
// stored.
func (h *typingHandler) Handle(ctx context.Context, c *chat.Conn, data map[string]any) error {
	p, err := payload[event.TypingPayload](data)
	if err != nil {
		return err
	}
	if err := required("roomId", p.RoomID); err != nil {
		return err
	}
	if err := room.Authorize(p.RoomID, c.UserID); err != nil {
		return err
	}
	h.s.Broadcast(ctx, p.RoomID, c, h.out, event.TypingSignal{RoomID: p.RoomID, From: c.UserID})
	return nil
}

type OnlineHandler struct{ s *chat.Server }

func NewOnlineHandler(s *chat.Server) chat.Handler { return &OnlineHandler{s: s} }

func (h *OnlineHandler) Kind() event.Kind { return event.KindOnline }

// Handle announces the caller online to every other connection.
func (h *OnlineHandler) Handle(ctx context.Context, c *chat.Conn, _ map[string]any) error {
	h.s.Broadcast(ctx, event.ChannelAll, c, event.KindUserStatus, event.UserStatusPayload{
		UserID: c.UserID,
		Status: event.StatusOnline,
		User:   h.s.Messages().Sender(ctx, c.UserID),
	})
	return nil
}
