package item

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/model"
	"PShare/service/natsx"
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

const BizInterest = "item.interest"

// InterestEvent is what the item service publishes when someone marks
// interest in an item.
type InterestEvent struct {
	ItemID         string             `json:"itemId"`
	ItemTitle      string             `json:"itemTitle"`
	OwnerID        string             `json:"ownerId"`
	InterestedUser *model.UserSummary `json:"interestedUser"`
}

// Notifier delivers a server event to a user's personal channel.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind event.Kind, payload any) bool
}

type RelayConf struct {
	Subject string
	Queue   string
	Mode    natsx.NatsxMode
	IdemTTL time.Duration
}

// Relay turns interest events into interest:notification for the owner.
type Relay struct {
	n Notifier
}

func NewRelay(n Notifier) *Relay {
	return &Relay{n: n}
}

// Register binds the relay to the interest subject on m. Redeliveries are
// filtered by message id for IdemTTL.
func (r *Relay) Register(ctx context.Context, m *natsx.NatsManager, conf RelayConf) error {
	if conf.IdemTTL <= 0 {
		conf.IdemTTL = 10 * time.Minute
	}
	route := natsx.NatsxRoute{
		Biz:     BizInterest,
		Subject: conf.Subject,
		Mode:    conf.Mode,
		Queue:   conf.Queue,
	}
	if conf.Mode == natsx.JetStreamPush {
		route.Durable = strings.ReplaceAll(conf.Queue, ".", "_")
		route.AckWait = 30 * time.Second
	}
	if err := m.RegisterRoute(route); err != nil {
		return err
	}
	h := natsx.NatsxChain(r.Handle, natsx.NatsxIdemMiddleware(natsx.NewMemIdem(ctx, conf.IdemTTL), conf.IdemTTL))
	return m.Subscribe(BizInterest, h)
}

// Handle never returns an error for a bad payload; a redelivery would not fix it.
func (r *Relay) Handle(ctx context.Context, msg natsx.NatsxMessage) error {
	var ev InterestEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Warn("bad interest event", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	if ev.OwnerID == "" || ev.ItemID == "" {
		logger.Warn("interest event missing owner or item", zap.String("item", ev.ItemID))
		return nil
	}
	if ev.InterestedUser != nil && ev.InterestedUser.ID == ev.OwnerID {
		return nil
	}
	delivered := r.n.Notify(ctx, ev.OwnerID, event.KindInterest, &event.InterestPayload{
		ItemID:         ev.ItemID,
		ItemTitle:      ev.ItemTitle,
		InterestedUser: ev.InterestedUser,
		Message:        interestText(ev.InterestedUser),
	})
	logger.Debug("interest relayed", zap.String("owner", ev.OwnerID), zap.String("item", ev.ItemID), zap.Bool("delivered", delivered))
	return nil
}

func interestText(u *model.UserSummary) string {
	if u == nil || strings.TrimSpace(u.Name) == "" {
		return "A user expressed interest in your item."
	}
	return u.Name + " expressed interest in your item."
}
