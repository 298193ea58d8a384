package chat

import (
	"PShare/module/chat/model"
	"time"
)

// Message is a conversation entry. Optimistic entries are local sends the
// server has not confirmed yet; they carry a temp_ id.
type Message struct {
	model.Message
	Optimistic bool `json:"isOptimistic,omitempty"`
}

const tempPrefix = "temp_"

func confirmed(m *model.Message) Message {
	return Message{Message: *m}
}

func sameContent(a *Message, b *model.Message) bool {
	return a.Text == b.Text && a.From == b.From
}

func within(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}

// isDuplicate: the same id is already listed, or a confirmed entry with the
// same text and author sits inside the window.
func isDuplicate(list []Message, in *model.Message, window time.Duration) bool {
	for i := range list {
		e := &list[i]
		if e.ID == in.ID {
			return true
		}
		if !e.Optimistic && sameContent(e, in) && within(e.CreatedAt, in.CreatedAt, window) {
			return true
		}
	}
	return false
}

// reconcile is phase two of a send: an accepted server message replaces the
// optimistic entries it confirms. ok is false when in was a duplicate.
func reconcile(list []Message, in *model.Message, window time.Duration) (out []Message, ok bool) {
	if isDuplicate(list, in, window) {
		return list, false
	}
	out = make([]Message, 0, len(list)+1)
	for _, e := range list {
		if e.Optimistic && sameContent(&e, in) {
			continue
		}
		out = append(out, e)
	}
	return append(out, confirmed(in)), true
}

// mergeServer takes the server list as truth and keeps the optimistic
// entries it does not account for yet, after it. A server message accounts
// for an optimistic entry when the content matches and it is not older than
// the entry by more than window.
func mergeServer(list []Message, server []*model.Message, window time.Duration) []Message {
	out := make([]Message, 0, len(server)+2)
	used := make([]bool, len(server))
	for _, m := range server {
		out = append(out, confirmed(m))
	}
	for _, e := range list {
		if !e.Optimistic {
			continue
		}
		matched := false
		for i, m := range server {
			if !used[i] && sameContent(&e, m) && !m.CreatedAt.Before(e.CreatedAt.Add(-window)) {
				used[i], matched = true, true
				break
			}
		}
		if !matched {
			out = append(out, e)
		}
	}
	return out
}

func confirmedOnly(list []Message) []*model.Message {
	out := make([]*model.Message, 0, len(list))
	for i := range list {
		if !list[i].Optimistic {
			m := list[i].Message
			out = append(out, &m)
		}
	}
	return out
}

// applyServer is mergeServer that also keeps confirmed entries newer than
// the server's last message, which arrived live while the fetch was in
// flight.
func applyServer(list []Message, server []*model.Message, window time.Duration) []Message {
	out := mergeServer(list, server, window)
	var last *model.Message
	if len(server) > 0 {
		last = server[len(server)-1]
	}
	for i := range list {
		e := list[i]
		if e.Optimistic {
			continue
		}
		if last != nil && !last.Before(&e.Message) {
			continue
		}
		out, _ = reconcile(out, &e.Message, window)
	}
	return out
}
