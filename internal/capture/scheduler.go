package capture

import (
	"sync"
	"time"
)

// FrameScheduler coalesces highlight repaints: at most one callback runs
// per frame, and scheduling while one is pending replaces it rather than
// queueing both. This is the requestAnimationFrame discipline rendered in
// Go; fast pointer movement never builds a repaint backlog.
type FrameScheduler interface {
	// Schedule queues fn for the next frame, replacing any pending
	// unexecuted callback.
	Schedule(fn func())
	// Cancel drops the pending callback, if any.
	Cancel()
	// Stop cancels and releases the scheduler's resources.
	Stop()
}

// tickerScheduler runs pending callbacks on a fixed frame interval.
type tickerScheduler struct {
	mu       sync.Mutex
	interval time.Duration
	pending  func()
	timer    *time.Timer
	stopped  bool
}

// NewFrameScheduler returns a scheduler firing at most once per interval.
func NewFrameScheduler(interval time.Duration) FrameScheduler {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &tickerScheduler{interval: interval}
}

func (s *tickerScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.pending = fn
	if s.timer != nil {
		// A frame is already queued; the new callback replaced the old one
		// and will run when it fires.
		return
	}
	s.timer = time.AfterFunc(s.interval, s.fire)
}

func (s *tickerScheduler) fire() {
	s.mu.Lock()
	fn := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (s *tickerScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *tickerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
