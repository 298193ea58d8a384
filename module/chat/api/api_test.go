package api

import (
	midsec "PShare/middleware/security"
	"PShare/module/chat/message"
	"PShare/module/chat/model"
	"PShare/module/user"
	"PShare/service/chat"
	"PShare/tools/errs"
	"PShare/tools/security"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

var testAuth = security.DefaultOptions([]byte("api-test-secret"))

type apiFixture struct {
	r    *gin.Engine
	msgs *message.Service
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := user.NewMemoryDirectory(
		model.UserSummary{ID: "u1", Name: "Ann"},
		model.UserSummary{ID: "u2", Name: "Bob"},
	)
	msgs := message.NewService(message.NewMemoryStore(), dir)
	srv := chat.NewServer(chat.Conf{NodeID: "api-test", Auth: testAuth}, msgs, dir)

	r := gin.New()
	RegisterOps(r)
	NewMessageAPI(msgs, srv).Register(r, midsec.Middleware(midsec.Options{Token: testAuth, Users: dir}))
	return &apiFixture{r: r, msgs: msgs}
}

func (f *apiFixture) do(t *testing.T, method, path, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		tok, _, _, err := security.Generate(testAuth, uid, nil)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		req.AddCookie(&http.Cookie{Name: security.CookieToken, Value: tok})
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestSendThenHistoryAndInbox(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/messages/send", "u1", `{"to":"u2","text":"  is the drill free?  "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("send = %d %s", w.Code, w.Body.String())
	}
	var sent struct{ Message model.Message }
	decodeBody(t, w, &sent)
	if sent.Message.Text != "is the drill free?" || sent.Message.RoomID != "room:u1:u2" || sent.Message.Read {
		t.Fatalf("sent %+v", sent.Message)
	}

	w = f.do(t, http.MethodGet, "/api/messages/with/u1", "u2", "")
	var hist struct{ Messages []model.Message }
	decodeBody(t, w, &hist)
	if w.Code != http.StatusOK || len(hist.Messages) != 1 || hist.Messages[0].ID != sent.Message.ID {
		t.Fatalf("history %d %+v", w.Code, hist)
	}

	w = f.do(t, http.MethodGet, "/api/messages/conversations", "u2", "")
	var inbox struct{ Conversations []model.ConversationSummary }
	decodeBody(t, w, &inbox)
	if len(inbox.Conversations) != 1 {
		t.Fatalf("conversations %+v", inbox)
	}
	cs := inbox.Conversations[0]
	if cs.OtherUserID != "u1" || cs.UnreadCount != 1 || cs.OtherUser == nil || cs.OtherUser.Name != "Ann" {
		t.Fatalf("summary %+v", cs)
	}

	w = f.do(t, http.MethodPut, "/api/messages/read/u1", "u2", "")
	var upd struct{ Updated int64 }
	decodeBody(t, w, &upd)
	if w.Code != http.StatusOK || upd.Updated != 1 {
		t.Fatalf("read %d %+v", w.Code, upd)
	}
	w = f.do(t, http.MethodPut, "/api/messages/read/u1", "u2", "")
	decodeBody(t, w, &upd)
	if upd.Updated != 0 {
		t.Fatalf("second read updated %d", upd.Updated)
	}
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, method, path, uid, body string
		status, code                  int
	}{
		{"no token", http.MethodGet, "/api/messages/conversations", "", "", http.StatusUnauthorized, errs.AuthenticationError},
		{"unknown user token", http.MethodGet, "/api/messages/conversations", "ghost", "", http.StatusUnauthorized, errs.AuthenticationError},
		{"blank text", http.MethodPost, "/api/messages/send", "u1", `{"to":"u2","text":"   "}`, http.StatusBadRequest, errs.ValidationError},
		{"self send", http.MethodPost, "/api/messages/send", "u1", `{"to":"u1","text":"hi"}`, http.StatusBadRequest, errs.ValidationError},
		{"bad body", http.MethodPost, "/api/messages/send", "u1", `{`, http.StatusBadRequest, errs.ValidationError},
		{"unknown recipient", http.MethodPost, "/api/messages/send", "u1", `{"to":"u9","text":"hi"}`, http.StatusNotFound, errs.NotFoundError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, tc.method, tc.path, tc.uid, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			var ce errs.CodeError
			decodeBody(t, w, &ce)
			if ce.Code != tc.code {
				t.Fatalf("code = %d, want %d", ce.Code, tc.code)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	if w = f.do(t, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
}
