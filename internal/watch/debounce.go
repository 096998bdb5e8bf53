package watch

import (
	"sync"
	"time"
)

// debouncer coalesces rapid triggers per key: fire runs once, delay after
// the last trigger for that key.
type debouncer struct {
	delay time.Duration
	fire  func(key string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool

	// firing counts fire calls in progress; Add only happens under mu
	// while !stopped.
	firing sync.WaitGroup
}

func newDebouncer(delay time.Duration, fire func(key string)) *debouncer {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &debouncer{delay: delay, fire: fire, pending: make(map[string]*time.Timer)}
}

// trigger schedules key, resetting its timer if already pending.
func (d *debouncer) trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.pending[key]; ok {
		t.Reset(d.delay)
		return
	}
	d.pending[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.firing.Add(1)
		d.mu.Unlock()
		defer d.firing.Done()
		d.fire(key)
	})
}

// stop cancels every pending key and waits for fires already in progress.
// No fire starts after stop returns.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.pending {
		t.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	d.firing.Wait()
}

// pendingCount returns the number of scheduled keys.
func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
