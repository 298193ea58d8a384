package handlers

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/room"
	"PShare/service/chat"
	"PShare/tools/errs"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

type SendHandler struct{ s *chat.Server }

func NewSendHandler(s *chat.Server) chat.Handler { return &SendHandler{s: s} }

func (h *SendHandler) Kind() event.Kind { return event.KindSend }

func (h *SendHandler) Handle(ctx context.Context, c *chat.Conn, data map[string]any) error {
	p, err := payload[event.SendPayload](data)
	if err != nil {
		return err
	}
	if err := required("roomId", p.RoomID, "to", p.To, "text", strings.TrimSpace(p.Text)); err != nil {
		return err
	}
	if err := room.Authorize(p.RoomID, c.UserID); err != nil {
		return err
	}
	if other, _ := room.Other(p.RoomID, c.UserID); other != p.To {
		return errs.ErrValidation.WrapMsg("recipient is not the other participant", "roomId", p.RoomID, "to", p.To)
	}

	m, err := h.s.SendMessage(ctx, c.UserID, p.To, p.Text)
	if errors.Is(err, errs.ErrNotFound) {
		// recipient account is gone; nothing to deliver to
		logger.Warn("send to unknown recipient dropped", zap.String("from", c.UserID), zap.String("to", p.To))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Debug("message sent", zap.String("id", m.ID), zap.String("room", m.RoomID))
	return nil
}

type ReadHandler struct{ s *chat.Server }

func NewReadHandler(s *chat.Server) chat.Handler { return &ReadHandler{s: s} }

func (h *ReadHandler) Kind() event.Kind { return event.KindReadRequest }

func (h *ReadHandler) Handle(ctx context.Context, c *chat.Conn, data map[string]any) error {
	p, err := payload[event.ReadPayload](data)
	if err != nil {
		return err
	}
	if err := required("messageId", p.MessageID, "roomId", p.RoomID); err != nil {
		return err
	}
	if err := room.Authorize(p.RoomID, c.UserID); err != nil {
		return err
	}
	_, err = h.s.ReadMessage(ctx, c.UserID, p.MessageID, p.RoomID)
	return err
}
