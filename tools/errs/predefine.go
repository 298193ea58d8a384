package errs

import (
	"errors"
	"net/http"
)

const (
	ValidationError     = 1001
	AuthorizationError  = 1002
	NotFoundError       = 1003
	AuthenticationError = 1004
	StoreUnavailable    = 1005
	ServerInternalError = 500
)

var (
	ErrValidation       = NewCodeError(ValidationError, "invalid request")
	ErrAuthorization    = NewCodeError(AuthorizationError, "not a participant of this room")
	ErrNotFound         = NewCodeError(NotFoundError, "not found")
	ErrAuthentication   = NewCodeError(AuthenticationError, "authentication required")
	ErrStoreUnavailable = NewCodeError(StoreUnavailable, "message store unavailable")
	ErrInternal         = NewCodeError(ServerInternalError, "internal error")
)

// HTTPStatus maps an error class onto the REST status returned to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the coded error safe to hand to a client. Errors without a
// code collapse to ErrInternal so driver messages never leak.
func Public(err error) *CodeError {
	if ce := Code(err); ce != nil {
		return ce.clone()
	}
	return ErrInternal.clone()
}
