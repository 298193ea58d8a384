package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/room"
	"PShare/service/metrics"
	"PShare/service/storage"
	"context"

	"go.uber.org/zap"
)

// Notifier delivers per user events on the personal channel "user:<id>".
// Delivery is best effort: an offline user simply misses the event, the
// message store stays the durable record.
type Notifier struct {
	srv      *Server
	presence storage.Presence
}

// NewNotifier binds a notifier to a gateway. Components outside the gateway
// receive it by injection through Server.Notifier.
func NewNotifier(srv *Server, presence storage.Presence) *Notifier {
	return &Notifier{srv: srv, presence: presence}
}

// Notify returns whether the event was handed to the transport.
func (n *Notifier) Notify(ctx context.Context, userID string, kind event.Kind, payload any) bool {
	if n == nil || n.srv == nil {
		logger.Warn("notify without gateway, dropped", zap.String("user", userID), zap.String("event", kind.String()))
		metrics.Notifications.WithLabelValues(kind.String(), "disabled").Inc()
		return false
	}
	if n.presence != nil {
		online, err := n.presence.IsOnline(ctx, userID)
		if err != nil {
			// presence unknown: try anyway, delivery is idempotent on the client
			logger.Warn("presence lookup failed", zap.String("user", userID), zap.Error(err))
		} else if !online {
			logger.Debug("notify skipped, user offline", zap.String("user", userID), zap.String("event", kind.String()))
			metrics.Notifications.WithLabelValues(kind.String(), "offline").Inc()
			return false
		}
	}
	n.srv.Broadcast(ctx, room.PersonalChannel(userID), nil, kind, payload)
	metrics.Notifications.WithLabelValues(kind.String(), "delivered").Inc()
	return true
}
