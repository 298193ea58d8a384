// Package event defines the realtime wire protocol shared by the gateway and
// the client SDK: a closed set of event kinds, their payloads, and the frame
// envelope that carries them.
package event

// Kind enumerates every event the protocol knows. Inbound kinds travel
// client to server, outbound kinds server to client. Two wire names
// ("message:read", "typing:stop") exist in both directions and map to
// distinct kinds.
type Kind uint8

const (
	KindUnknown Kind = iota

	// client -> server
	KindJoin
	KindLeave
	KindSend
	KindTypingStart
	KindTypingStop
	KindReadRequest
	KindOnline

	// server -> client
	KindHistory
	KindMessageNew
	KindNotification
	KindTyping
	KindTypingStopped
	KindReadReceipt
	KindInterest
	KindUserStatus
	KindError

	kindCount
)

var kindNames = [kindCount]string{
	KindUnknown:       "unknown",
	KindJoin:          "conversation:join",
	KindLeave:         "conversation:leave",
	KindSend:          "message:send",
	KindTypingStart:   "typing:start",
	KindTypingStop:    "typing:stop",
	KindReadRequest:   "message:read",
	KindOnline:        "user:online",
	KindHistory:       "conversation:history",
	KindMessageNew:    "message:new",
	KindNotification:  "message:notification",
	KindTyping:        "typing",
	KindTypingStopped: "typing:stop",
	KindReadReceipt:   "message:read",
	KindInterest:      "interest:notification",
	KindUserStatus:    "user:status",
	KindError:         "error",
}

var (
	inbound  = map[string]Kind{}
	outbound = map[string]Kind{}
)

func init() {
	for k := KindJoin; k < kindCount; k++ {
		if k.Inbound() {
			inbound[kindNames[k]] = k
		} else {
			outbound[kindNames[k]] = k
		}
	}
}

// String returns the wire name.
func (k Kind) String() string {
	if k >= kindCount {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

func (k Kind) Inbound() bool { return k >= KindJoin && k <= KindOnline }

func (k Kind) Outbound() bool { return k >= KindHistory && k < kindCount }

// InboundKinds lists every client to server kind, in declaration order.
func InboundKinds() []Kind {
	out := make([]Kind, 0, KindOnline)
	for k := KindJoin; k <= KindOnline; k++ {
		out = append(out, k)
	}
	return out
}

// ParseInbound resolves a wire name sent by a client.
func ParseInbound(name string) (Kind, bool) {
	k, ok := inbound[name]
	return k, ok
}

// ParseOutbound resolves a wire name sent by the server.
func ParseOutbound(name string) (Kind, bool) {
	k, ok := outbound[name]
	return k, ok
}
