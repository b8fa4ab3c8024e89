// Package syncstatus reports whether the remote store is reachable and how
// many edits are still waiting to be written.
package syncstatus

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 30 * time.Second
	probeTimeout    = 5 * time.Second
)

type Status struct {
	Online       bool      `json:"online"`
	PendingSyncs int       `json:"pendingSyncs"`
	LastCheck    time.Time `json:"lastCheck"`
	LastError    string    `json:"lastError,omitempty"`
}

type Reporter interface {
	Status() Status
}

// Pinger probes the remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PendingCounter reports edits not yet written to the remote store.
type PendingCounter interface {
	PendingSyncs() int
}

// PendingFunc adapts a function to PendingCounter.
type PendingFunc func() int

func (f PendingFunc) PendingSyncs() int { return f() }

// Tracker combines a periodic reachability probe with pending-edit counters.
type Tracker struct {
	pinger   Pinger
	counters []PendingCounter
	interval time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	online    bool
	lastCheck time.Time
	lastErr   string
}

func NewTracker(pinger Pinger, interval time.Duration, counters ...PendingCounter) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		pinger:   pinger,
		counters: counters,
		interval: interval,
		now:      time.Now,
	}
}

var _ Reporter = (*Tracker)(nil)

// Status returns the last probe result and the current pending count.
func (t *Tracker) Status() Status {
	pending := 0
	for _, c := range t.counters {
		pending += c.PendingSyncs()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		Online:       t.online,
		PendingSyncs: pending,
		LastCheck:    t.lastCheck,
		LastError:    t.lastErr,
	}
}

// Check probes the store once and records the outcome.
func (t *Tracker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	err := t.pinger.Ping(ctx)

	t.mu.Lock()
	wasOnline := t.online
	t.online = err == nil
	t.lastCheck = t.now().UTC()
	t.lastErr = ""
	if err != nil {
		t.lastErr = err.Error()
	}
	t.mu.Unlock()

	switch {
	case err != nil && wasOnline:
		log.WithError(err).Warn("remote store went offline")
	case err == nil && !wasOnline:
		log.Info("remote store is online")
	}
	return t.Status()
}

// Run probes immediately and then on every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Check(ctx)
		}
	}
}
