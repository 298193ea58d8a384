package message

import (
	"PShare/global"
	"PShare/logger"
	"PShare/module/chat/model"
	"PShare/module/chat/room"
	"PShare/module/user"
	"PShare/service/metrics"
	"PShare/tools/errs"
	"PShare/tools/ids"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const roomStripes = 64

// Service owns message validation, id and timestamp assignment, and the
// per room write ordering. Persistence is delegated to a Store.
type Service struct {
	store Store
	users user.Directory
	now   func() time.Time

	clockMu sync.Mutex
	last    time.Time

	locks [roomStripes]sync.Mutex
}

type Option func(*Service)

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, users user.Directory, opts ...Option) *Service {
	s := &Service{store: store, users: users, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LockRoom serializes writers of one room. Callers hold it across append
// and the room broadcast so subscribers observe append order.
func (s *Service) LockRoom(roomID string) (unlock func()) {
	mu := &s.locks[global.HashPartition(roomID, roomStripes)]
	mu.Lock()
	return mu.Unlock
}

// stamp returns a millisecond timestamp that never goes backwards.
func (s *Service) stamp() time.Time {
	now := s.now().UTC().Truncate(time.Millisecond)
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	return now
}

// NormalizeText trims text and checks the length bound.
func NormalizeText(text string) (string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", errs.ErrValidation.WrapMsg("text is required")
	}
	if utf8.RuneCountInString(t) > model.MaxTextLength {
		return "", errs.ErrValidation.WrapMsg("text too long", "max", model.MaxTextLength)
	}
	return t, nil
}

// Append validates and persists a message from one participant to another.
func (s *Service) Append(ctx context.Context, from, to, text string) (*model.Message, error) {
	roomID, err := room.ID(from, to)
	if err != nil {
		return nil, err
	}
	body, err := NormalizeText(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.Lookup(ctx, to); err != nil {
		return nil, storeErr(err)
	}

	m := &model.Message{
		ID:        ids.GenerateOrdered(),
		From:      from,
		To:        to,
		Text:      body,
		RoomID:    roomID,
		CreatedAt: s.stamp(),
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, storeErr(err)
	}
	metrics.MessagesAppended.Inc()
	return m, nil
}

// History returns a room ascending. limit <= 0 is uncapped.
func (s *Service) History(ctx context.Context, roomID string, limit int) ([]*model.Message, error) {
	if _, _, err := room.Parse(roomID); err != nil {
		return nil, err
	}
	list, err := s.store.ListRoom(ctx, roomID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	if list == nil {
		list = []*model.Message{}
	}
	return list, nil
}

// HistoryWith is the full conversation between me and other.
func (s *Service) HistoryWith(ctx context.Context, me, other string) ([]*model.Message, error) {
	roomID, err := room.ID(me, other)
	if err != nil {
		return nil, err
	}
	return s.History(ctx, roomID, 0)
}

// ConversationsFor builds one summary per room the user takes part in,
// most recent first. unreadCount is the store's recipient unread count.
func (s *Service) ConversationsFor(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errs.ErrValidation.WrapMsg("missing user id")
	}
	lasts, err := s.store.LastPerRoom(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	unread, err := s.store.UnreadByRoom(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}

	out := make([]model.ConversationSummary, 0, len(lasts))
	for _, m := range lasts {
		other := m.To
		if other == userID {
			other = m.From
		}
		out = append(out, model.ConversationSummary{
			RoomID:      m.RoomID,
			OtherUserID: other,
			OtherUser:   s.summary(ctx, other),
			LastMessage: m,
			UnreadCount: unread[m.RoomID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[j].LastMessage.Before(out[i].LastMessage)
	})
	return out, nil
}

// summary falls back to a bare id when the directory cannot answer, so a
// deleted account does not hide its conversations.
func (s *Service) summary(ctx context.Context, userID string) *model.UserSummary {
	u, err := s.users.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			logger.Warn("user lookup failed", zap.String("user", userID), zap.Error(err))
		}
		return &model.UserSummary{ID: userID}
	}
	return u
}

// Sender resolves the display summary of a message author.
func (s *Service) Sender(ctx context.Context, userID string) *model.UserSummary {
	return s.summary(ctx, userID)
}

// MarkRead marks every unread message to recipientID in roomID as read.
func (s *Service) MarkRead(ctx context.Context, roomID, recipientID string) (int64, error) {
	if err := room.Authorize(roomID, recipientID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkRoomRead(ctx, roomID, recipientID)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// MarkReadWith is MarkRead addressed by counterpart instead of room.
func (s *Service) MarkReadWith(ctx context.Context, me, other string) (int64, error) {
	roomID, err := room.ID(me, other)
	if err != nil {
		return 0, err
	}
	return s.MarkRead(ctx, roomID, me)
}

// MarkOneRead marks one message read on behalf of its recipient and returns
// the updated message.
func (s *Service) MarkOneRead(ctx context.Context, messageID, roomID, readerID string) (*model.Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, errs.ErrValidation.WrapMsg("messageId is required")
	}
	if err := room.Authorize(roomID, readerID); err != nil {
		return nil, err
	}
	m, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, storeErr(err)
	}
	if m.RoomID != roomID || m.To != readerID {
		return nil, errs.ErrAuthorization.WrapMsg("only the recipient may mark a message read", "messageId", messageID)
	}
	if _, err := s.store.MarkOneRead(ctx, messageID, readerID); err != nil {
		return nil, storeErr(err)
	}
	m.Read = true
	return m, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Message, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	return m, nil
}

// storeErr keeps coded errors and classifies everything else as the store
// being unavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errs.Code(err) != nil {
		return err
	}
	return errs.ErrStoreUnavailable.WrapMsg(err.Error())
}
