package watcher

import (
	"sync"
	"time"
)

// Debouncer groups rapid file changes together. Every event restarts the
// window; when it expires the pending events, deduplicated by path, are
// handed to fire in arrival order.
type Debouncer struct {
	delay   time.Duration
	fire    func([]ChangeEvent)
	timer   *time.Timer
	pending []ChangeEvent
	stopped bool
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer calling fire after delay of quiet.
func NewDebouncer(delay time.Duration, fire func([]ChangeEvent)) *Debouncer {
	return &Debouncer{delay: delay, fire: fire}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}

	// later events for a path replace earlier ones but keep its position
	index := make(map[string]int, len(d.pending))
	events := make([]ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		if i, ok := index[event.Path]; ok {
			events[i] = event
			continue
		}
		index[event.Path] = len(events)
		events = append(events, event)
	}
	d.pending = nil
	d.mutex.Unlock()

	d.fire(events)
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}

// serialRunner runs a handler for one subscription at a time. A trigger
// that arrives while the handler runs is merged into a single follow-up
// run, so the last run always starts after the last trigger.
type serialRunner struct {
	run     func([]ChangeEvent)
	wg      *sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
	queued  []ChangeEvent
}

func (s *serialRunner) trigger(events []ChangeEvent) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.queued = append(s.queued, events...)
		s.mu.Unlock()
		return
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(events)
}

func (s *serialRunner) loop(events []ChangeEvent) {
	defer s.wg.Done()
	for {
		s.run(events)

		s.mu.Lock()
		if s.stopped || len(s.queued) == 0 {
			s.running = false
			s.queued = nil
			s.mu.Unlock()
			return
		}
		events = s.queued
		s.queued = nil
		s.mu.Unlock()
	}
}

// stop refuses further triggers and drops queued follow-ups. A run already
// in progress finishes and is still counted by wg.
func (s *serialRunner) stop() {
	s.mu.Lock()
	s.stopped = true
	s.queued = nil
	s.mu.Unlock()
}
