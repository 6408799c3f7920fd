package eventbus

import (
	"context"
	"sync"
)

// Recent keeps the last N events for status pages.
type Recent struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func NewRecent(size int) *Recent {
	if size <= 0 {
		size = 50
	}
	return &Recent{buf: make([]Event, size)}
}

func (r *Recent) Add(e Event) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// List returns events oldest first.
func (r *Recent) List() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.buf[:r.next]...)
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Run records events from bus until ctx ends. fn, when set, sees every event too.
func (r *Recent) Run(ctx context.Context, bus Bus, fn func(Event)) {
	ch, unsub := bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.Add(e)
			if fn != nil {
				fn(e)
			}
		}
	}
}
