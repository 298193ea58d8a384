// Package room derives conversation identifiers. A room is never stored:
// its id is a pure function of the unordered participant pair.
package room

import (
	"PShare/tools/errs"
	"strings"
)

const (
	prefix         = "room"
	personalPrefix = "user:"
	sep            = ":"
)

// ID returns "room:<lo>:<hi>" for the two participants, in sorted order.
func ID(a, b string) (string, error) {
	if err := checkUser(a); err != nil {
		return "", err
	}
	if err := checkUser(b); err != nil {
		return "", err
	}
	if a == b {
		return "", errs.ErrValidation.WrapMsg("room needs two distinct participants", "user", a)
	}
	if b < a {
		a, b = b, a
	}
	return prefix + sep + a + sep + b, nil
}

// Parse splits a well formed room id into its two participants.
func Parse(roomID string) (string, string, error) {
	parts := strings.Split(roomID, sep)
	if len(parts) != 3 || parts[0] != prefix || parts[1] == "" || parts[2] == "" || parts[1] == parts[2] {
		return "", "", errs.ErrValidation.WrapMsg("malformed roomId", "roomId", roomID)
	}
	return parts[1], parts[2], nil
}

// Authorize accepts roomID only when userID is one of its two parts.
func Authorize(roomID, userID string) error {
	a, b, err := Parse(roomID)
	if err != nil {
		return err
	}
	if userID == "" || (userID != a && userID != b) {
		return errs.ErrAuthorization.WrapMsg("", "roomId", roomID, "user", userID)
	}
	return nil
}

// Other returns the counterpart of userID in roomID.
func Other(roomID, userID string) (string, error) {
	a, b, err := Parse(roomID)
	if err != nil {
		return "", err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", errs.ErrAuthorization.WrapMsg("", "roomId", roomID, "user", userID)
}

// PersonalChannel is the per user notification channel "user:<id>".
func PersonalChannel(userID string) string {
	return personalPrefix + userID
}

func checkUser(id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.ErrValidation.WrapMsg("missing user id")
	}
	if strings.Contains(id, sep) {
		return errs.ErrValidation.WrapMsg("user id may not contain ':'", "user", id)
	}
	return nil
}
