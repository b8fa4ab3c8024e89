// Package autosave debounces saves of a log that is being edited.
package autosave

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"alcyxob/setpad/internal/domain"
)

// DefaultDelay is the quiescence period before a scheduled save runs.
const DefaultDelay = 500 * time.Millisecond

// SaveFunc persists a record and returns the stored version.
type SaveFunc func(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error)

type Options struct {
	Delay time.Duration
	Clock Clock
	// OnSaved and OnError run on the goroutine that performed the save.
	OnSaved func(domain.LogRecord)
	OnError func(error)
}

// Saver runs at most one save at a time for a single log. Each Schedule
// restarts the quiescence timer; only the latest scheduled record is saved.
// A record scheduled while a save is running is kept and saved afterwards.
type Saver struct {
	ctx  context.Context
	save SaveFunc
	opts Options

	mu       sync.Mutex
	pending  *domain.LogRecord
	timer    Timer
	gen      uint64 // identifies the armed timer; stale callbacks see a different value
	inFlight bool
	held     bool
	done     chan struct{} // closed when the running save finishes
	closed   bool
}

// New returns a Saver that calls save with ctx when a timer fires.
func New(ctx context.Context, save SaveFunc, opts Options) *Saver {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Saver{ctx: ctx, save: save, opts: opts}
}

// Schedule buffers record and restarts the timer. It is a no-op after Cancel.
func (s *Saver) Schedule(record domain.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	rec := record.Clone()
	s.pending = &rec
	s.stopTimerLocked()
	if !s.held {
		s.armLocked()
	}
}

// Pending reports whether an edit has not reached storage yet.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil || s.inFlight
}

// Flush saves the buffered record now, after any running save completes.
// It returns the error of its own save attempt, if one was made.
// ctx bounds the wait and the save; the save still runs as the saver's user.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	if err := s.waitIdleLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := s.beginLocked()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.run(withValues(ctx, s.ctx), rec)
}

// Hold stops the timer without dropping the buffered record. Edits made
// while held are buffered but not scheduled until Release.
func (s *Saver) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = true
	s.stopTimerLocked()
}

// Release undoes Hold and restarts the timer for a buffered record.
func (s *Saver) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	if s.closed || s.pending == nil || s.inFlight {
		return
	}
	s.stopTimerLocked()
	s.armLocked()
}

// Cancel drops any buffered record and stops accepting new ones.
// A save that is already running is not interrupted; use Wait for it.
func (s *Saver) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	s.stopTimerLocked()
}

// Wait blocks until no save is running.
func (s *Saver) Wait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitIdleLocked(ctx)
}

func (s *Saver) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		// Stopped or replaced after the clock had already launched it.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.inFlight {
		// The running save re-arms the timer when it finishes.
		s.mu.Unlock()
		return
	}
	rec, ok := s.beginLocked()
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = s.run(s.ctx, rec)
}

// beginLocked takes the pending record and marks a save as running.
func (s *Saver) beginLocked() (domain.LogRecord, bool) {
	if s.pending == nil {
		return domain.LogRecord{}, false
	}
	rec := *s.pending
	s.pending = nil
	s.inFlight = true
	s.done = make(chan struct{})
	return rec, true
}

func (s *Saver) run(ctx context.Context, rec domain.LogRecord) error {
	saved, err := s.save(ctx, rec)

	s.mu.Lock()
	s.inFlight = false
	close(s.done)
	switch {
	case s.closed:
	case s.pending != nil:
		if s.timer == nil && !s.held {
			s.armLocked()
		}
	case err != nil:
		// Keep the unsaved edit so a later Flush retries it.
		s.pending = &rec
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("logId", rec.ID).Error("auto-save failed")
		if s.opts.OnError != nil {
			s.opts.OnError(err)
		}
		return err
	}
	if s.opts.OnSaved != nil {
		s.opts.OnSaved(saved)
	}
	return nil
}

func (s *Saver) waitIdleLocked(ctx context.Context) error {
	for s.inFlight {
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			s.mu.Lock()
			return ctx.Err()
		}
		s.mu.Lock()
	}
	return nil
}

func (s *Saver) armLocked() {
	s.gen++
	gen := s.gen
	s.timer = s.opts.Clock.AfterFunc(s.opts.Delay, func() { s.fire(gen) })
}

func (s *Saver) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// valuesCtx takes deadline and cancellation from one context and values
// from another.
type valuesCtx struct {
	context.Context
	values context.Context
}

func (c valuesCtx) Value(key any) any { return c.values.Value(key) }

func withValues(ctx, values context.Context) context.Context {
	if values == nil {
		return ctx
	}
	return valuesCtx{Context: ctx, values: values}
}
