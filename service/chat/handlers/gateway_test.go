package handlers

import (
	"PShare/module/chat/event"
	"PShare/module/chat/message"
	"PShare/module/chat/model"
	"PShare/module/user"
	"PShare/service/chat"
	"PShare/service/storage"
	"PShare/tools/errs"
	"PShare/tools/security"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var testAuth = security.DefaultOptions([]byte("gateway-test-secret"))

type gateway struct {
	ts   *httptest.Server
	srv  *chat.Server
	msgs *message.Service
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := user.NewMemoryDirectory(
		model.UserSummary{ID: "u1", Name: "Ann"},
		model.UserSummary{ID: "u2", Name: "Bob"},
		model.UserSummary{ID: "u3", Name: "Cid"},
	)
	msgs := message.NewService(message.NewMemoryStore(), dir)
	srv := chat.NewServer(chat.Conf{NodeID: "test", Auth: testAuth}, msgs, dir,
		chat.WithPresence(storage.NewMemoryPresence()))
	if err := srv.Start(context.Background(), All(srv)...); err != nil {
		t.Fatalf("Start: %v", err)
	}

	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &gateway{ts: ts, srv: srv, msgs: msgs}
}

func (g *gateway) wsURL() string {
	return "ws" + strings.TrimPrefix(g.ts.URL, "http") + "/ws"
}

type peer struct {
	t  *testing.T
	ws *websocket.Conn
}

func (g *gateway) connect(t *testing.T, userID string) *peer {
	t.Helper()
	token, _, _, err := security.Generate(testAuth, userID, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(g.wsURL(), h)
	if err != nil {
		t.Fatalf("dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { ws.Close() })
	p := &peer{t: t, ws: ws}
	p.sync()
	return p
}

func (p *peer) emit(name string, data any) {
	p.t.Helper()
	raw, _ := json.Marshal(data)
	if err := p.ws.WriteJSON(event.Frame{Event: name, Data: raw}); err != nil {
		p.t.Fatalf("write %s: %v", name, err)
	}
}

// sync round trips an unknown event; the error reply proves the server side
// of the connection is registered and reading.
func (p *peer) sync() {
	p.t.Helper()
	p.emit("sync", map[string]any{})
	p.expect("error")
}

// expect reads until a frame named name arrives and decodes its data into
// out when out is non nil.
func (p *peer) expect(name string, out ...any) {
	p.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = p.ws.SetReadDeadline(deadline)
		var f event.Frame
		if err := p.ws.ReadJSON(&f); err != nil {
			p.t.Fatalf("waiting for %s: %v", name, err)
		}
		if f.Event != name {
			continue
		}
		if len(out) > 0 {
			if err := json.Unmarshal(f.Data, out[0]); err != nil {
				p.t.Fatalf("decode %s: %v", name, err)
			}
		}
		return
	}
}

// expectNone fails if a frame named name arrives within d. The connection
// is unusable for reads afterwards.
func (p *peer) expectNone(name string, d time.Duration) {
	p.t.Helper()
	_ = p.ws.SetReadDeadline(time.Now().Add(d))
	for {
		var f event.Frame
		err := p.ws.ReadJSON(&f)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			p.t.Fatalf("read: %v", err)
		}
		if f.Event == name {
			p.t.Fatalf("unexpected %s: %s", name, f.Data)
		}
	}
}

func TestHandshakeRequiresToken(t *testing.T) {
	g := newGateway(t)

	_, resp, err := websocket.DefaultDialer.Dial(g.wsURL(), nil)
	if err == nil {
		t.Fatalf("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %v, want 401", resp)
	}

	token, _, _, _ := security.Generate(testAuth, "ghost", nil)
	h := http.Header{}
	h.Set("Cookie", security.CookieToken+"="+token)
	_, resp, err = websocket.DefaultDialer.Dial(g.wsURL(), h)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: err=%v resp=%v", err, resp)
	}
}

func TestUnauthorizedJoinGetsErrorAndNoSubscription(t *testing.T) {
	g := newGateway(t)
	ann := g.connect(t, "u1")
	cid := g.connect(t, "u3")

	cid.emit("conversation:join", event.JoinPayload{RoomID: "room:u1:u2"})
	var e event.ErrorPayload
	cid.expect("error", &e)
	if e.Code != errs.AuthorizationError || e.Event != "conversation:join" {
		t.Fatalf("error payload %+v", e)
	}

	ann.emit("conversation:join", event.JoinPayload{RoomID: "room:u1:u2"})
	ann.expect("conversation:history")
	ann.emit("message:send", event.SendPayload{RoomID: "room:u1:u2", To: "u2", Text: "private"})
	ann.expect("message:new")

	cid.expectNone("message:new", 300*time.Millisecond)
}

func TestSendDeliversToRoomAndRecipient(t *testing.T) {
	g := newGateway(t)
	ann := g.connect(t, "u1")
	bob := g.connect(t, "u2")

	ann.emit("conversation:join", event.JoinPayload{OtherUserID: "u2"})
	var hist event.HistoryPayload
	ann.expect("conversation:history", &hist)
	if hist.RoomID != "room:u1:u2" || len(hist.Messages) != 0 {
		t.Fatalf("history %+v", hist)
	}

	ann.emit("message:send", event.SendPayload{RoomID: "room:u1:u2", To: "u2", Text: "hello"})

	var echo event.MessageNewPayload
	ann.expect("message:new", &echo)
	if echo.RoomID != "room:u1:u2" || echo.Message.Text != "hello" || echo.Message.From != "u1" {
		t.Fatalf("message:new %+v", echo)
	}

	var note event.NotificationPayload
	bob.expect("message:notification", &note)
	if note.Message.ID != echo.Message.ID || note.From == nil || note.From.Name != "Ann" {
		t.Fatalf("notification %+v", note)
	}

	stored, err := g.msgs.History(context.Background(), "room:u1:u2", 0)
	if err != nil || len(stored) != 1 || stored[0].Read {
		t.Fatalf("stored %v, %v", stored, err)
	}

	// later joiners get it in history
	bob.emit("conversation:join", event.JoinPayload{RoomID: "room:u1:u2"})
	bob.expect("conversation:history", &hist)
	if len(hist.Messages) != 1 || hist.Messages[0].ID != echo.Message.ID {
		t.Fatalf("bob history %+v", hist)
	}
}

func TestSendValidation(t *testing.T) {
	g := newGateway(t)
	ann := g.connect(t, "u1")

	var e event.ErrorPayload
	ann.emit("message:send", event.SendPayload{RoomID: "room:u1:u2", To: "u3", Text: "hi"})
	ann.expect("error", &e)
	if e.Code != errs.ValidationError {
		t.Fatalf("wrong recipient code = %d", e.Code)
	}

	ann.emit("message:send", event.SendPayload{RoomID: "room:u1:u2", To: "u2", Text: "   "})
	ann.expect("error", &e)
	if e.Code != errs.ValidationError {
		t.Fatalf("blank text code = %d", e.Code)
	}

	ann.emit("conversation:leave", map[string]any{})
	ann.expect("error", &e)
	if e.Code != errs.ValidationError || e.Event != "conversation:leave" {
		t.Fatalf("leave without room %+v", e)
	}

	// the connection survives handler errors
	ann.emit("conversation:join", event.JoinPayload{RoomID: "room:u1:u2"})
	ann.expect("conversation:history")
}

func TestReadReceiptReachesBothParticipants(t *testing.T) {
	g := newGateway(t)
	ann := g.connect(t, "u1")
	bob := g.connect(t, "u2")

	ann.emit("message:send", event.SendPayload{RoomID: "room:u1:u2", To: "u2", Text: "hello"})
	var note event.NotificationPayload
	bob.expect("message:notification", &note)

	// the sender may not mark their own message
	ann.emit("message:read", event.ReadPayload{MessageID: note.Message.ID, RoomID: "room:u1:u2"})
	var e event.ErrorPayload
	ann.expect("error", &e)
	if e.Code != errs.AuthorizationError {
		t.Fatalf("sender read code = %d", e.Code)
	}

	bob.emit("message:read", event.ReadPayload{MessageID: note.Message.ID, RoomID: "room:u1:u2"})
	var receipt event.ReadReceiptPayload
	ann.expect("message:read", &receipt)
	if receipt.MessageID != note.Message.ID || receipt.ReadBy != "u2" || receipt.RoomID != "room:u1:u2" {
		t.Fatalf("receipt %+v", receipt)
	}
	bob.expect("message:read", &receipt)
	if receipt.ReadBy != "u2" {
		t.Fatalf("reader copy %+v", receipt)
	}

	m, _ := g.msgs.Get(context.Background(), note.Message.ID)
	if !m.Read {
		t.Fatalf("message not marked read")
	}
}

func TestTypingReachesOthersOnly(t *testing.T) {
	g := newGateway(t)
	ann := g.connect(t, "u1")
	bob := g.connect(t, "u2")
	for _, p := range []*peer{ann, bob} {
		p.emit("conversation:join", event.JoinPayload{RoomID: "room:u1:u2"})
		p.expect("conversation:history")
	}

	ann.emit("typing:start", event.TypingPayload{RoomID: "room:u1:u2", To: "u2"})
	var sig event.TypingSignal
	bob.expect("typing", &sig)
	if sig.From != "u1" || sig.RoomID != "room:u1:u2" {
		t.Fatalf("typing %+v", sig)
	}
	ann.emit("typing:stop", event.TypingPayload{RoomID: "room:u1:u2", To: "u2"})
	bob.expect("typing:stop", &sig)
	if sig.From != "u1" {
		t.Fatalf("typing:stop %+v", sig)
	}

	ann.expectNone("typing", 300*time.Millisecond)
}

func TestPresenceBroadcasts(t *testing.T) {
	g := newGateway(t)
	ann := g.connect(t, "u1")
	bob := g.connect(t, "u2")

	bob.emit("user:online", map[string]any{})
	var st event.UserStatusPayload
	ann.expect("user:status", &st)
	if st.UserID != "u2" || st.Status != event.StatusOnline || st.User == nil || st.User.Name != "Bob" {
		t.Fatalf("online status %+v", st)
	}

	bob.ws.Close()
	ann.expect("user:status", &st)
	if st.UserID != "u2" || st.Status != event.StatusOffline {
		t.Fatalf("offline status %+v", st)
	}
}
