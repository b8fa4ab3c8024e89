package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/repository"
	"alcyxob/setpad/internal/service"
)

var ErrLogNotFound = errors.New("training log not found")

type editorKey struct {
	userID string
	logID  string
}

// DefaultIdleTimeout is how long a saved, unused editor stays open.
const DefaultIdleTimeout = 10 * time.Minute

// Registry keeps one Editor per (user, log) so concurrent requests for the
// same log share a working copy and a single auto-save pipeline.
// Two clients editing the same log still overwrite each other: last write wins.
type Registry struct {
	manager service.LogManager
	users   auth.Provider
	opts    autosave.Options
	now     func() time.Time

	mu      sync.Mutex
	editors map[editorKey]*Editor
}

func NewRegistry(manager service.LogManager, users auth.Provider, opts autosave.Options) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = autosave.SystemClock{}
	}
	return &Registry{
		manager: manager,
		users:   users,
		opts:    opts,
		now:     clock.Now,
		editors: make(map[editorKey]*Editor),
	}
}

func (r *Registry) key(ctx context.Context, logID string) (editorKey, error) {
	u, ok := r.users.CurrentUser(ctx)
	if !ok {
		return editorKey{}, repository.ErrUnauthenticated
	}
	return editorKey{userID: u.ID, logID: logID}, nil
}

// Open returns the editor for logID, loading the log on first use.
func (r *Registry) Open(ctx context.Context, logID string) (*Editor, error) {
	k, err := r.key(ctx, logID)
	if err != nil {
		return nil, err
	}
	if ed := r.lookup(k); ed != nil {
		return ed, nil
	}

	rec, err := r.manager.Open(ctx, logID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrLogNotFound, logID)
	}
	return r.adopt(ctx, k, *rec), nil
}

// Create saves a new log and opens an editor on it.
func (r *Registry) Create(ctx context.Context) (*Editor, error) {
	return r.create(ctx, r.manager.CreateNew())
}

// CreateFromTemplate saves a new log filled from a workout template and opens
// an editor on it.
func (r *Registry) CreateFromTemplate(ctx context.Context, templateID string) (*Editor, error) {
	rec, err := r.manager.CreateFromTemplate(templateID)
	if err != nil {
		return nil, err
	}
	return r.create(ctx, rec)
}

func (r *Registry) create(ctx context.Context, record domain.LogRecord) (*Editor, error) {
	rec, err := r.manager.Save(ctx, record)
	if err != nil {
		return nil, err
	}
	k, err := r.key(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return r.adopt(ctx, k, rec), nil
}

// Save replaces the whole log and writes it immediately. The log does not
// need to exist yet.
func (r *Registry) Save(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error) {
	k, err := r.key(ctx, record.ID)
	if err != nil {
		return domain.LogRecord{}, err
	}
	ed := r.lookup(k)
	if ed == nil {
		ed = r.adopt(ctx, k, record)
	}
	ed.Replace(record)
	if err := ed.Flush(ctx); err != nil {
		return domain.LogRecord{}, err
	}
	return ed.Record(), nil
}

// Delete pauses auto-save of the log, waits for any running save, and then
// deletes it remotely. Pending edits are dropped only once the delete
// succeeded; on failure they are scheduled again. Listings stop showing the
// log once Delete returns without error.
func (r *Registry) Delete(ctx context.Context, logID string) error {
	k, err := r.key(ctx, logID)
	if err != nil {
		return err
	}

	ed := r.lookup(k)
	if ed != nil {
		if err := ed.hold(ctx); err != nil {
			return err
		}
	}
	if err := r.manager.Remove(ctx, logID); err != nil {
		if ed != nil {
			ed.release()
		}
		return err
	}
	if ed != nil {
		ed.discard()
		r.mu.Lock()
		if r.editors[k] == ed {
			delete(r.editors, k)
		}
		r.mu.Unlock()
	}
	return nil
}

// FlushAll writes the pending edits of every open editor.
func (r *Registry) FlushAll(ctx context.Context) error {
	r.mu.Lock()
	editors := make([]*Editor, 0, len(r.editors))
	for _, ed := range r.editors {
		editors = append(editors, ed)
	}
	r.mu.Unlock()

	var errs error
	for _, ed := range editors {
		errs = multierr.Append(errs, ed.Flush(ctx))
	}
	if errs != nil {
		log.WithError(errs).Error("flushing open logs")
	}
	return errs
}

// PendingSyncs counts open logs with edits not yet in storage.
func (r *Registry) PendingSyncs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ed := range r.editors {
		if ed.Pending() {
			n++
		}
	}
	return n
}

// EvictIdle closes editors that have nothing to save and were not used for
// maxIdle, so the next Open reads the stored log again. It returns the
// number of editors closed.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, ed := range r.editors {
		if ed.idleSince(cutoff) {
			delete(r.editors, k)
			n++
		}
	}
	return n
}

// Run evicts idle editors every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	if maxIdle <= 0 {
		maxIdle = DefaultIdleTimeout
	}
	if interval <= 0 {
		interval = maxIdle / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(maxIdle); n > 0 {
				log.WithField("evicted", n).Debug("closed idle editors")
			}
		}
	}
}

func (r *Registry) lookup(k editorKey) *Editor {
	r.mu.Lock()
	defer r.mu.Unlock()
	ed := r.editors[k]
	if ed != nil {
		ed.touch(r.now())
	}
	return ed
}

// adopt registers an editor for record unless another request won the race.
func (r *Registry) adopt(ctx context.Context, k editorKey, record domain.LogRecord) *Editor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ed, ok := r.editors[k]; ok {
		return ed
	}
	ed := newEditor(ctx, r.manager, record, r.opts)
	ed.touch(r.now())
	r.editors[k] = ed
	return ed
}
