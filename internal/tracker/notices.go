package tracker

import (
	"sync"
	"time"
)

// Notices holds at most one active notice. Posting replaces the current one;
// each notice expires on its own after the configured TTL.
type Notices struct {
	mu          sync.Mutex
	ttl         time.Duration
	seq         uint64
	current     *Notice
	timer       *time.Timer
	subscribers []func(Notice)
	now         func() time.Time
	closed      bool
}

// NewNotices creates a board whose notices live for ttl.
func NewNotices(ttl time.Duration) *Notices {
	return &Notices{ttl: ttl, now: time.Now}
}

// Subscribe registers fn to be called with every posted notice.
func (n *Notices) Subscribe(fn func(Notice)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, fn)
}

// Post replaces the active notice with message. After Close it does nothing.
func (n *Notices) Post(message string) Notice {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return Notice{}
	}
	n.seq++
	now := n.now()
	notice := Notice{ID: n.seq, Message: message, Posted: now, Expires: now.Add(n.ttl)}
	n.current = &notice

	if n.timer != nil {
		n.timer.Stop()
	}
	id := notice.ID
	n.timer = time.AfterFunc(n.ttl, func() { n.expire(id) })

	subs := make([]func(Notice), len(n.subscribers))
	copy(subs, n.subscribers)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(notice)
	}
	return notice
}

func (n *Notices) expire(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != nil && n.current.ID == id {
		n.current = nil
	}
}

// Current returns the active notice, if any.
func (n *Notices) Current() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notice{}, false
	}
	return *n.current, true
}

// Close stops the expiry timer and drops the active notice and subscribers.
func (n *Notices) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.current = nil
	n.subscribers = nil
}
