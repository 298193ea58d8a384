// Package handlers implements the gateway's inbound events, one handler per
// event kind.
package handlers

import (
	"PShare/service/chat"
	"PShare/tools/decode"
	"PShare/tools/errs"
)

// All returns one handler for every inbound event kind.
func All(s *chat.Server) []chat.Handler {
	return []chat.Handler{
		NewJoinHandler(s),
		NewLeaveHandler(s),
		NewSendHandler(s),
		NewTypingStartHandler(s),
		NewTypingStopHandler(s),
		NewReadHandler(s),
		NewOnlineHandler(s),
	}
}

func payload[T any](data map[string]any) (*T, error) {
	p, err := decode.Map[T](data)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg(err.Error())
	}
	return p, nil
}

func required(kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			return errs.ErrValidation.WrapMsg(kv[i] + " is required")
		}
	}
	return nil
}
