package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newEngine(mws ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mws...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.OPTIONS("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestOriginAllowlist(t *testing.T) {
	r := newEngine(Origin([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign preflight = %d", w.Code)
	}
}

func TestManagerRunsInOrderAndStopsOnAbort(t *testing.T) {
	var trace []string
	m := NewManager().
		Add("a", func(c *gin.Context) { trace = append(trace, "a") }).
		Add("gate", func(c *gin.Context) {
			trace = append(trace, "gate")
			if c.Query("deny") != "" {
				c.AbortWithStatus(http.StatusTeapot)
			}
		})
	r := newEngine(m.Use())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK || len(trace) != 2 {
		t.Fatalf("code=%d trace=%v", w.Code, trace)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?deny=1", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("abort code = %d", w.Code)
	}

	// replacing keeps the slot, removing takes effect on the next request
	m.Add("a", func(c *gin.Context) { trace = append(trace, "a2") })
	m.Add("b", func(c *gin.Context) { trace = append(trace, "b") })
	if got := m.Names(); len(got) != 3 || got[0] != "a" || got[1] != "gate" || got[2] != "b" {
		t.Fatalf("names = %v", got)
	}
	m.Remove("gate")
	m.Remove("missing")
	trace = nil
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?deny=1", nil))
	if w.Code != http.StatusOK || len(trace) != 2 || trace[0] != "a2" || trace[1] != "b" {
		t.Fatalf("code=%d trace=%v", w.Code, trace)
	}
}

func TestRequestID(t *testing.T) {
	r := newEngine(NewManager().Add("request-id", RequestID()).Use(), AccessLog())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("no request id assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(HeaderRequestID); got != "abc" {
		t.Fatalf("request id = %q", got)
	}
}
