package security

import (
	"net/http"
	"testing"
	"time"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	tok, hash, exp, err := Generate(opts, "u1", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry not in the future: %v", exp)
	}
	claims, err := Verify(opts, tok, hash)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got := claims.UserID(); got != "u1" {
		t.Fatalf("UserID = %q, want u1", got)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, _, _, err := Generate(DefaultOptions([]byte("a")), "u1", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := Verify(DefaultOptions([]byte("b")), tok, ""); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestAuthenticateFromCookieAndHeader(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	tok, _, _, _ := Generate(opts, "u7", nil)

	r, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: CookieToken, Value: tok})
	if uid, err := Authenticate(opts, r); err != nil || uid != "u7" {
		t.Fatalf("cookie auth = %q, %v", uid, err)
	}

	r, _ = http.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	if uid, err := Authenticate(opts, r); err != nil || uid != "u7" {
		t.Fatalf("bearer auth = %q, %v", uid, err)
	}

	r, _ = http.NewRequest(http.MethodGet, "/ws", nil)
	if _, err := Authenticate(opts, r); err == nil {
		t.Fatalf("expected missing token error")
	}
}
