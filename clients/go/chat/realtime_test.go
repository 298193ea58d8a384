package chat

import (
	midsec "PShare/middleware/security"
	"PShare/module/chat/api"
	"PShare/module/chat/message"
	"PShare/module/chat/model"
	"PShare/module/user"
	gateway "PShare/service/chat"
	"PShare/service/chat/handlers"
	"PShare/service/storage"
	"PShare/tools/security"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

var e2eAuth = security.DefaultOptions([]byte("sdk-e2e-secret"))

func startServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := user.NewMemoryDirectory(
		model.UserSummary{ID: "u1", Name: "Ann"},
		model.UserSummary{ID: "u2", Name: "Bob"},
	)
	msgs := message.NewService(message.NewMemoryStore(), dir)
	srv := gateway.NewServer(gateway.Conf{NodeID: "sdk-e2e", Auth: e2eAuth}, msgs, dir,
		gateway.WithPresence(storage.NewMemoryPresence()))
	if err := srv.Start(context.Background(), handlers.All(srv)...); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	api.NewMessageAPI(msgs, srv).Register(r, midsec.Middleware(midsec.Options{Token: e2eAuth, Users: dir}))
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts.URL
}

type client struct {
	rt    *Realtime
	convo *Conversation
	inbox *Inbox
}

func connect(t *testing.T, base, me, other string) *client {
	t.Helper()
	tok, _, _, err := security.Generate(e2eAuth, me, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rt := NewRealtime(RealtimeConf{URL: "ws" + strings.TrimPrefix(base, "http") + "/ws", Token: tok})
	rt.Run(context.Background())
	t.Cleanup(rt.Close)
	eventually(t, me+" connected", rt.Connected)

	deps := Deps{Channel: rt, API: NewRESTClient(base, tok, nil)}
	convo, err := NewConversation(me, other, deps, Options{})
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if err := convo.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(convo.Close)
	inbox, err := NewInbox(me, deps, Options{})
	if err != nil {
		t.Fatalf("NewInbox: %v", err)
	}
	if err := inbox.Start(context.Background()); err != nil {
		t.Fatalf("inbox Start: %v", err)
	}
	t.Cleanup(inbox.Close)
	return &client{rt: rt, convo: convo, inbox: inbox}
}

func TestEndToEndConversation(t *testing.T) {
	base := startServer(t)
	ann := connect(t, base, "u1", "u2")
	bob := connect(t, base, "u2", "u1")

	if _, ok := ann.convo.Send("is the ladder still free?"); !ok {
		t.Fatalf("send refused")
	}
	eventually(t, "bob sees the message", func() bool {
		got := bob.convo.Messages()
		return len(got) == 1 && got[0].Text == "is the ladder still free?"
	})
	eventually(t, "ann's entry confirmed", func() bool {
		got := ann.convo.Messages()
		return len(got) == 1 && !got[0].Optimistic
	})
	eventually(t, "bob's badge", func() bool { return bob.inbox.TotalUnread() == 1 })

	if n := bob.convo.MarkVisibleRead(); n != 1 {
		t.Fatalf("MarkVisibleRead = %d", n)
	}
	id := bob.convo.Messages()[0].ID
	eventually(t, "ann sees the receipt", func() bool {
		r, ok := ann.convo.Receipts()[id]
		return ok && r.ReadBy == "u2"
	})
	eventually(t, "bob's badge cleared", func() bool { return bob.inbox.TotalUnread() == 0 })
}

func TestRESTClientErrors(t *testing.T) {
	base := startServer(t)
	tok, _, _, _ := security.Generate(e2eAuth, "u1", nil)
	rc := NewRESTClient(base, tok, nil)

	if _, err := rc.Send(context.Background(), "u1", "to myself"); err == nil || !strings.Contains(err.Error(), "1001") {
		t.Fatalf("self send err = %v", err)
	}
	anon := NewRESTClient(base, "", nil)
	if _, err := anon.Conversations(context.Background()); err == nil || !strings.Contains(err.Error(), "1004") {
		t.Fatalf("anonymous err = %v", err)
	}
	m, err := rc.Send(context.Background(), "u2", "hi")
	if err != nil || m == nil || m.RoomID != "room:u1:u2" {
		t.Fatalf("send = %+v, %v", m, err)
	}
	list, err := rc.History(context.Background(), "u2")
	if err != nil || len(list) != 1 {
		t.Fatalf("history = %+v, %v", list, err)
	}
}
