package security

import (
	"net/http"
	"strings"
)

const (
	CookieToken = "token"
	HeaderToken = "authorization"
)

// ExtractToken finds the session token a browser or SDK presents: the
// "token" cookie first, then "Authorization: Bearer", then a raw
// "authorization" header value.
func ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ck, err := r.Cookie(CookieToken); err == nil && strings.TrimSpace(ck.Value) != "" {
		return strings.TrimSpace(ck.Value)
	}
	authz := strings.TrimSpace(r.Header.Get(HeaderToken))
	if authz == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return authz
}

// Authenticate verifies the request's token and returns the user id it names.
func Authenticate(opts Options, r *http.Request) (string, error) {
	token := ExtractToken(r)
	if token == "" {
		return "", errMissingToken
	}
	claims, err := Verify(opts, token, "")
	if err != nil {
		return "", err
	}
	uid := claims.UserID()
	if uid == "" {
		return "", errNoSubject
	}
	return uid, nil
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

const (
	errMissingToken = tokenError("missing session token")
	errNoSubject    = tokenError("token carries no user id")
)
