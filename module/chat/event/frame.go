package event

import (
	"PShare/tools/errs"
	"encoding/json"
)

// Frame is the JSON envelope on the websocket: {"event": name, "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type inboundFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Encode builds the wire bytes for kind carrying payload.
func Encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return json.Marshal(Frame{Event: kind.String(), Data: data})
}

// DecodeInbound parses a client frame. The payload is returned as a generic
// object so each handler can decode it into its own type.
func DecodeInbound(raw []byte) (Kind, map[string]any, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return KindUnknown, nil, errs.ErrValidation.WrapMsg("malformed frame")
	}
	k, ok := ParseInbound(f.Event)
	if !ok {
		return KindUnknown, nil, errs.ErrValidation.WrapMsg("unknown event", "event", f.Event)
	}
	return k, f.Data, nil
}

// DecodeOutbound parses a server frame on the client side.
func DecodeOutbound(raw []byte) (Kind, json.RawMessage, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return KindUnknown, nil, errs.Wrap(err)
	}
	k, ok := ParseOutbound(f.Event)
	if !ok {
		return KindUnknown, nil, errs.ErrValidation.WrapMsg("unknown event", "event", f.Event)
	}
	return k, f.Data, nil
}

// ChannelAll addresses every connection of every gateway node.
const ChannelAll = "*"

// Envelope carries an already encoded frame between gateway nodes.
type Envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Except  string          `json:"except,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}
