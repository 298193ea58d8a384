package chat

import (
	"context"
	"sync"
	"time"
)

type pollState uint8

const (
	pollStopped pollState = iota
	pollOffline           // armed: poll now, then every OfflinePoll
	pollOnline            // safety net: every OnlinePoll
)

// Poller runs fn on a timer whose period follows connectivity. Polls never
// overlap: they all run on the poller's own goroutine.
type Poller struct {
	fn      func(ctx context.Context)
	offline time.Duration
	online  time.Duration

	mu     sync.Mutex
	state  pollState
	modeCh chan bool
	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(fn func(ctx context.Context), offline, online time.Duration) *Poller {
	return &Poller{fn: fn, offline: offline, online: online}
}

// Start arms the poller. When offline the first poll runs right away.
func (p *Poller) Start(ctx context.Context, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != pollStopped {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.modeCh = make(chan bool, 1)
	p.kick = make(chan struct{}, 1)
	p.done = make(chan struct{})
	p.state = pollOnline
	if !online {
		p.state = pollOffline
	}
	go p.run(ctx, p.state)
}

func (p *Poller) run(ctx context.Context, st pollState) {
	defer close(p.done)
	period := func() time.Duration {
		if st == pollOffline {
			return p.offline
		}
		return p.online
	}
	if st == pollOffline {
		p.fn(ctx)
	}
	timer := time.NewTimer(period())
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(period())
	}
	for {
		select {
		case <-ctx.Done():
			return
		case online := <-p.modeCh:
			next := pollOnline
			if !online {
				next = pollOffline
			}
			if next == st {
				continue
			}
			st = next
			if st == pollOffline {
				p.fn(ctx)
			}
			reset()
		case <-p.kick:
			p.fn(ctx)
			reset()
		case <-timer.C:
			p.fn(ctx)
			timer.Reset(period())
		}
	}
}

// SetOnline switches the period. Going offline polls immediately.
func (p *Poller) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pollStopped {
		return
	}
	p.state = pollOnline
	if !online {
		p.state = pollOffline
	}
	// keep only the latest mode
	select {
	case <-p.modeCh:
	default:
	}
	p.modeCh <- online
}

// Trigger polls now, as when the view becomes visible again.
func (p *Poller) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pollStopped {
		return
	}
	notify(p.kick)
}

// Stop cancels the task and waits for an in flight poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == pollStopped {
		p.mu.Unlock()
		return
	}
	p.state = pollStopped
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	cancel()
	<-done
}

// Online reports the armed period; false also covers a stopped poller.
func (p *Poller) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pollOnline
}
