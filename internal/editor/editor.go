// Package editor holds the working copies of logs that are open for editing.
package editor

import (
	"context"
	"sync"
	"time"

	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/service"
)

// Editor owns the working copy of one open log. Every change is applied
// through the LogManager transformations and scheduled for auto-save.
type Editor struct {
	manager service.LogManager
	saver   *autosave.Saver

	mu       sync.Mutex
	record   domain.LogRecord
	lastErr  error
	lastUsed time.Time
}

func newEditor(ctx context.Context, manager service.LogManager, record domain.LogRecord, opts autosave.Options) *Editor {
	e := &Editor{manager: manager, record: record.Clone()}

	onSaved, onError := opts.OnSaved, opts.OnError
	opts.OnSaved = func(saved domain.LogRecord) {
		e.mu.Lock()
		e.lastErr = nil
		if saved.ID == e.record.ID {
			e.record.LastOpened = saved.LastOpened
		}
		e.mu.Unlock()
		if onSaved != nil {
			onSaved(saved)
		}
	}
	opts.OnError = func(err error) {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		if onError != nil {
			onError(err)
		}
	}

	// Saves outlive the request that opened the editor but keep its identity.
	e.saver = autosave.New(context.WithoutCancel(ctx), manager.Save, opts)
	return e
}

// Record returns a copy of the working copy, including unsaved edits.
func (e *Editor) Record() domain.LogRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Clone()
}

// LastError is the error of the most recent failed auto-save, cleared by a
// successful one.
func (e *Editor) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Editor) Pending() bool { return e.saver.Pending() }

func (e *Editor) touch(now time.Time) {
	e.mu.Lock()
	e.lastUsed = now
	e.mu.Unlock()
}

// idleSince reports whether the editor has nothing to save and has not been
// used since cutoff.
func (e *Editor) idleSince(cutoff time.Time) bool {
	e.mu.Lock()
	unused := !e.lastUsed.After(cutoff) && e.lastErr == nil
	e.mu.Unlock()
	return unused && !e.saver.Pending()
}

// Flush writes outstanding edits immediately.
func (e *Editor) Flush(ctx context.Context) error { return e.saver.Flush(ctx) }

// Apply runs edit against the working copy and schedules a save of the result.
// The working copy is unchanged when edit fails.
func (e *Editor) Apply(edit func(domain.LogRecord) (domain.LogRecord, error)) (domain.LogRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := edit(e.record)
	if err != nil {
		return e.record.Clone(), err
	}
	next.ID = e.record.ID
	e.record = next
	e.saver.Schedule(next)
	return next.Clone(), nil
}

// Replace swaps the working copy for record, keeping the log id.
func (e *Editor) Replace(record domain.LogRecord) domain.LogRecord {
	rec, _ := e.Apply(func(domain.LogRecord) (domain.LogRecord, error) {
		return record.Clone(), nil
	})
	return rec
}

func (e *Editor) AddRow() domain.LogRecord {
	rec, _ := e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.AddRow(r), nil
	})
	return rec
}

func (e *Editor) RemoveLastRow() domain.LogRecord {
	rec, _ := e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.RemoveLastRow(r), nil
	})
	return rec
}

func (e *Editor) UpdateRow(index int, patch service.RowPatch) (domain.LogRecord, error) {
	return e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.UpdateRow(r, index, patch)
	})
}

func (e *Editor) ToggleRowUnit(index int) (domain.LogRecord, error) {
	return e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.ToggleRowUnit(r, index)
	})
}

func (e *Editor) AddSet(rowIndex int) (domain.LogRecord, error) {
	return e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.AddSet(r, rowIndex)
	})
}

func (e *Editor) RemoveSet(rowIndex, setIndex int) (domain.LogRecord, error) {
	return e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.RemoveSet(r, rowIndex, setIndex)
	})
}

func (e *Editor) Rename(name string) domain.LogRecord {
	rec, _ := e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.Rename(r, name), nil
	})
	return rec
}

func (e *Editor) SetDate(date domain.LogDate) domain.LogRecord {
	rec, _ := e.Apply(func(r domain.LogRecord) (domain.LogRecord, error) {
		return e.manager.SetDate(r, date), nil
	})
	return rec
}

// hold pauses auto-save, keeping unsaved edits, and waits for a running save.
// The editor is released again when the wait fails.
func (e *Editor) hold(ctx context.Context) error {
	e.saver.Hold()
	if err := e.saver.Wait(ctx); err != nil {
		e.saver.Release()
		return err
	}
	return nil
}

func (e *Editor) release() { e.saver.Release() }

// discard drops unsaved edits for good.
func (e *Editor) discard() { e.saver.Cancel() }
