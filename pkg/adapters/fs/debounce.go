package fs

import (
	"sync"
	"time"

	"github.com/andymorris/couch-potato/pkg/core"
)

// debouncer coalesces bursts of events for the same id. An editor saving a
// file typically produces several writes; subscribers see one event.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	seq     uint64
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.Event
	seq   uint64
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, pending: make(map[string]*pendingEvent)}
}

// add schedules fire for e after the delay, replacing any event still
// pending for the same id. A CREATE followed by writes stays a CREATE.
func (d *debouncer) add(e core.Event, fire func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[e.ID]; ok {
		if prev.timer.Stop() {
			d.wg.Done()
		}
		if prev.event.Type == core.EventCreate && e.Type == core.EventModify {
			e.Type = core.EventCreate
		}
	}

	d.seq++
	seq := d.seq
	p := &pendingEvent{event: e, seq: seq}
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		cur, ok := d.pending[e.ID]
		if !ok || cur.seq != seq {
			d.mu.Unlock()
			return
		}
		delete(d.pending, e.ID)
		d.mu.Unlock()
		fire(cur.event)
	})
	d.pending[e.ID] = p
}

// stopAndWait rejects new events and waits up to timeout for scheduled
// ones to fire.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
