package handlers

import (
	"PShare/module/chat/event"
	"PShare/module/chat/room"
	"PShare/service/chat"
	"context"
	"strings"
)

type JoinHandler struct{ s *chat.Server }

func NewJoinHandler(s *chat.Server) chat.Handler { return &JoinHandler{s: s} }

func (h *JoinHandler) Kind() event.Kind { return event.KindJoin }

// Handle subscribes the connection to the room and replays its most recent
// history to the caller only.
func (h *JoinHandler) Handle(ctx context.Context, c *chat.Conn, data map[string]any) error {
	p, err := payload[event.JoinPayload](data)
	if err != nil {
		return err
	}
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" && p.OtherUserID != "" {
		if roomID, err = room.ID(c.UserID, p.OtherUserID); err != nil {
			return err
		}
	}
	if err := required("roomId", roomID); err != nil {
		return err
	}
	if err := room.Authorize(roomID, c.UserID); err != nil {
		return err
	}

	// subscribe first: a message landing between the two steps shows up in
	// both, and clients dedup by id
	h.s.Hub().Subscribe(c, roomID)
	msgs, err := h.s.Messages().History(ctx, roomID, h.s.Conf().HistoryLimit)
	if err != nil {
		h.s.Hub().Unsubscribe(c, roomID)
		return err
	}
	h.s.Emit(c, event.KindHistory, event.HistoryPayload{RoomID: roomID, Messages: msgs})
	return nil
}

type LeaveHandler struct{ s *chat.Server }

func NewLeaveHandler(s *chat.Server) chat.Handler { return &LeaveHandler{s: s} }

func (h *LeaveHandler) Kind() event.Kind { return event.KindLeave }

func (h *LeaveHandler) Handle(_ context.Context, c *chat.Conn, data map[string]any) error {
	p, err := payload[event.LeavePayload](data)
	if err != nil {
		return err
	}
	if err := required("roomId", p.RoomID); err != nil {
		return err
	}
	h.s.Hub().Unsubscribe(c, p.RoomID)
	return nil
}
