package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"PShare/module/chat/room"
	"context"
	"time"

	"go.uber.org/zap"
)

// SendMessage appends a message and fans it out: message:new to the room,
// message:notification to the recipient. Both the realtime and the REST send
// paths go through here.
func (s *Server) SendMessage(ctx context.Context, from, to, text string) (*model.Message, error) {
	roomID, err := room.ID(from, to)
	if err != nil {
		return nil, err
	}

	// append and room broadcast under the room lock keep emission order
	unlock := s.msgs.LockRoom(roomID)
	m, err := s.msgs.Append(ctx, from, to, text)
	if err != nil {
		unlock()
		return nil, err
	}
	s.Broadcast(ctx, roomID, nil, event.KindMessageNew, event.MessageNewPayload{RoomID: roomID, Message: m})
	unlock()

	s.notifier.Notify(ctx, to, event.KindNotification, event.NotificationPayload{
		Message: m,
		From:    s.msgs.Sender(ctx, from),
	})
	if s.sink != nil {
		s.sink.MessageCreated(ctx, m)
	}
	return m, nil
}

// ReadMessage marks one message read by its recipient and tells both
// participants. The reader's copy lets their inbox drop the unread badge.
func (s *Server) ReadMessage(ctx context.Context, readerID, messageID, roomID string) (*event.ReadReceiptPayload, error) {
	m, err := s.msgs.MarkOneRead(ctx, messageID, roomID, readerID)
	if err != nil {
		return nil, err
	}
	receipt := &event.ReadReceiptPayload{
		MessageID: m.ID,
		RoomID:    m.RoomID,
		ReadBy:    readerID,
		ReadAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	s.notifier.Notify(ctx, m.From, event.KindReadReceipt, receipt)
	s.notifier.Notify(ctx, readerID, event.KindReadReceipt, receipt)
	if s.sink != nil {
		s.sink.MessageRead(ctx, receipt)
	}
	logger.Debug("message read", zap.String("id", m.ID), zap.String("by", readerID))
	return receipt, nil
}
