package chat

import (
	"PShare/logger"
	"PShare/module/chat/event"
	"PShare/module/chat/room"
	"PShare/service/metrics"
	"PShare/tools/errs"
	"PShare/tools/ids"
	"PShare/tools/safe"
	"PShare/tools/security"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleWS authenticates the handshake, upgrades, and runs the connection
// until the peer leaves. Authentication happens before the upgrade so a bad
// token gets a plain 401 and never a socket.
func (s *Server) HandleWS(c *gin.Context) {
	disp, baseCtx := s.dispatcher()
	if disp == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errs.ErrInternal.WithDetail(errNotStarted.Error()))
		return
	}

	userID, err := s.authenticate(c.Request)
	if err != nil {
		logger.Info("[WS] handshake rejected", zap.String("remote", c.ClientIP()), zap.Error(err))
		c.AbortWithStatusJSON(errs.HTTPStatus(err), errs.Public(err))
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader already answered the request
		logger.Info("[WS] upgrade failed", zap.String("user", userID), zap.Error(err))
		return
	}

	conn := newConn(ids.GenerateString(), userID, ws, &s.conf)
	s.open(baseCtx, conn)
	safe.SafeGo(conn.writePump)

	conn.readLoop(func(raw []byte) {
		s.handleFrame(baseCtx, disp, conn, raw)
	})

	conn.close()
	s.closeConn(conn)
}

// authenticate resolves the handshake's session token to a known user.
func (s *Server) authenticate(r *http.Request) (string, error) {
	userID, err := security.Authenticate(s.conf.Auth, r)
	if err != nil {
		return "", errs.ErrAuthentication.WrapMsg(err.Error())
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.users.Lookup(ctx, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", errs.ErrAuthentication.WrapMsg("unknown user", "user", userID)
		}
		return "", errs.ErrStoreUnavailable.WrapMsg(err.Error())
	}
	return userID, nil
}

// open registers the connection and joins its personal channel.
func (s *Server) open(ctx context.Context, c *Conn) {
	s.hub.add(c)
	s.hub.Subscribe(c, room.PersonalChannel(c.UserID))
	metrics.Connections.Inc()

	if s.presence != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if _, err := s.presence.Online(pctx, c.UserID, c.ID); err != nil {
			logger.Warn("[WS] presence online failed", zap.String("user", c.UserID), zap.Error(err))
		}
		cancel()
		c.onPing = s.presenceKeeper(ctx, c, time.Now())
	}
	logger.Info("[WS] connected", zap.String("conn", c.ID), zap.String("user", c.UserID), zap.Stringer("remote", c.Remote))
}

// presenceKeeper returns the ping hook that renews c's presence entry so a
// long lived connection never expires. Renewals are at least
// PresenceRefresh apart, counted from since.
func (s *Server) presenceKeeper(ctx context.Context, c *Conn, since time.Time) func(now time.Time) {
	last := since
	return func(now time.Time) {
		if now.Sub(last) < s.conf.PresenceRefresh {
			return
		}
		last = now
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.presence.Refresh(pctx, c.UserID, c.ID); err != nil {
			logger.Warn("[WS] presence refresh failed", zap.String("user", c.UserID), zap.Error(err))
		}
	}
}

// closeConn drops every subscription of c and announces the user offline
// when this was their last connection anywhere.
func (s *Server) closeConn(c *Conn) {
	s.hub.remove(c)
	metrics.Connections.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var remaining int64
	if s.presence != nil {
		n, err := s.presence.Offline(ctx, c.UserID, c.ID)
		if err != nil {
			// judge by this node alone
			logger.Warn("[WS] presence offline failed", zap.String("user", c.UserID), zap.Error(err))
			n = int64(len(s.hub.UserConns(c.UserID)))
		}
		remaining = n
	} else {
		remaining = int64(len(s.hub.UserConns(c.UserID)))
	}
	logger.Info("[WS] closed", zap.String("conn", c.ID), zap.String("user", c.UserID), zap.Int64("remaining", remaining))

	if remaining == 0 {
		s.Broadcast(ctx, event.ChannelAll, nil, event.KindUserStatus, event.UserStatusPayload{
			UserID: c.UserID,
			Status: event.StatusOffline,
		})
	}
}

// handleFrame decodes and dispatches one client frame. Errors go back to
// the sender as an error event; they never end the connection.
func (s *Server) handleFrame(base context.Context, disp *Dispatcher, c *Conn, raw []byte) {
	k, data, err := event.DecodeInbound(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Info("[WS] bad frame", zap.String("conn", c.ID), zap.ByteString("sample", sample), zap.Error(err))
		metrics.InboundEvents.WithLabelValues("unknown", "error").Inc()
		s.EmitError(c, err, event.KindUnknown)
		return
	}

	ctx, cancel := context.WithTimeout(base, s.conf.HandlerTimeout)
	defer cancel()
	if err := disp.Dispatch(ctx, c, k, data); err != nil {
		logger.Debug("[WS] handler error", zap.String("event", k.String()), zap.String("user", c.UserID), zap.Error(err))
		metrics.InboundEvents.WithLabelValues(k.String(), "error").Inc()
		s.EmitError(c, err, k)
		return
	}
	metrics.InboundEvents.WithLabelValues(k.String(), "ok").Inc()
}
