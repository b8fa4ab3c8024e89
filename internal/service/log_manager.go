package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/repository"
)

// --- Error Definitions ---
var (
	ErrSaveFailed      = errors.New("failed to save training log")
	ErrDeleteFailed    = errors.New("failed to delete training log")
	ErrIndexOutOfRange = errors.New("row index out of range")
)

// ActiveCache keeps a local copy of the log the user last saved.
type ActiveCache interface {
	Save(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error)
	Load(ctx context.Context) (*domain.LogRecord, error)
	Clear(ctx context.Context) error
}

// ListState tags the outcome of LogManager.List.
type ListState string

const (
	ListLoaded      ListState = "loaded"
	ListEmpty       ListState = "empty"
	ListFetchFailed ListState = "fetch_failed"
)

// ListResult distinguishes "no logs" from "could not fetch logs".
type ListResult struct {
	State ListState
	Logs  []domain.LogSummary
	Err   error
}

// RowPatch is a partial row update; nil fields are left unchanged.
type RowPatch struct {
	MuscleGroup *string            `json:"muscleGroup,omitempty"`
	Exercise    *string            `json:"exercise,omitempty"`
	Notes       *string            `json:"notes,omitempty"`
	ShowNotes   *bool              `json:"showNotes,omitempty"`
	WeightUnit  *domain.WeightUnit `json:"weightUnit,omitempty"`
	Sets        []domain.SetEntry  `json:"sets,omitempty"`
}

// LogManager is the single entry point for reading and editing training logs.
// Methods taking a record and returning one never touch storage.
type LogManager interface {
	CreateNew() domain.LogRecord
	Open(ctx context.Context, id string) (*domain.LogRecord, error)
	Save(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ListResult
	RestoreActive(ctx context.Context) (*domain.LogRecord, error)

	AddRow(record domain.LogRecord) domain.LogRecord
	RemoveLastRow(record domain.LogRecord) domain.LogRecord
	UpdateRow(record domain.LogRecord, index int, patch RowPatch) (domain.LogRecord, error)
	ToggleRowUnit(record domain.LogRecord, index int) (domain.LogRecord, error)
	AddSet(record domain.LogRecord, rowIndex int) (domain.LogRecord, error)
	RemoveSet(record domain.LogRecord, rowIndex, setIndex int) (domain.LogRecord, error)
	Rename(record domain.LogRecord, name string) domain.LogRecord
	SetDate(record domain.LogRecord, date domain.LogDate) domain.LogRecord

	UniqueMuscleGroups(ctx context.Context) ([]string, error)
	UniqueExercises(ctx context.Context) ([]string, error)
	ExercisesForMuscleGroup(ctx context.Context, group string) ([]string, error)
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)

	Templates() []TemplateSummary
	CreateFromTemplate(templateID string) (domain.LogRecord, error)
}

// logManager implements the LogManager interface.
type logManager struct {
	logs  repository.LogRepository
	cache ActiveCache
	now   func() time.Time
}

// NewLogManager wires the remote store and the local cache. cache may be nil;
// a nil now uses time.Now.
func NewLogManager(logs repository.LogRepository, cache ActiveCache, now func() time.Time) LogManager {
	if now == nil {
		now = time.Now
	}
	return &logManager{logs: logs, cache: cache, now: now}
}

// CreateNew returns an unsaved log with one empty exercise row.
func (m *logManager) CreateNew() domain.LogRecord {
	now := m.now()
	return domain.Normalize(domain.LogRecord{
		ID:        uuid.NewString(),
		TableName: domain.NewLogName,
		Date:      domain.DateOf(now),
		Rows:      []domain.ExerciseRow{domain.NewRow()},
	}, now)
}

// Open loads and normalizes a log. A missing log yields nil, nil.
func (m *logManager) Open(ctx context.Context, id string) (*domain.LogRecord, error) {
	rec, err := m.logs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	normalized := domain.Normalize(*rec, m.now())
	return &normalized, nil
}

// Save normalizes and stores the log remotely, then caches it locally.
// Local cache failures are logged and do not fail the save.
func (m *logManager) Save(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error) {
	normalized := domain.Normalize(record, m.now())

	saved, err := m.logs.Put(ctx, normalized)
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("%w %q: %w", ErrSaveFailed, normalized.TableName, err)
	}

	if m.cache != nil {
		if _, err := m.cache.Save(ctx, saved); err != nil {
			log.WithError(err).WithField("logId", saved.ID).Warn("could not cache active log locally")
		}
	}
	return saved, nil
}

// Remove deletes the log remotely and drops the local copy if it is that log.
func (m *logManager) Remove(ctx context.Context, id string) error {
	if err := m.logs.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDeleteFailed, id, err)
	}
	if m.cache == nil {
		return nil
	}

	active, err := m.cache.Load(ctx)
	if err != nil {
		log.WithError(err).WithField("logId", id).Warn("could not read local cache after delete")
		return nil
	}
	if active != nil && active.ID == id {
		if err := m.cache.Clear(ctx); err != nil {
			log.WithError(err).WithField("logId", id).Warn("could not clear local cache after delete")
		}
	}
	return nil
}

// List fetches log summaries, most recently opened first.
func (m *logManager) List(ctx context.Context) ListResult {
	logs, err := m.logs.List(ctx)
	if err != nil {
		log.WithError(err).Error("could not fetch training logs")
		return ListResult{State: ListFetchFailed, Err: err}
	}
	if len(logs) == 0 {
		return ListResult{State: ListEmpty, Logs: []domain.LogSummary{}}
	}
	return ListResult{State: ListLoaded, Logs: logs}
}

// RestoreActive returns the locally cached log, if any.
func (m *logManager) RestoreActive(ctx context.Context) (*domain.LogRecord, error) {
	if m.cache == nil {
		return nil, nil
	}
	return m.cache.Load(ctx)
}

// AddRow appends an exercise row with a single empty set.
func (m *logManager) AddRow(record domain.LogRecord) domain.LogRecord {
	out := record.Clone()
	out.Rows = append(out.Rows, domain.NewRow())
	return domain.Normalize(out, m.now())
}

// RemoveLastRow drops the last row unless it is the only one.
func (m *logManager) RemoveLastRow(record domain.LogRecord) domain.LogRecord {
	out := record.Clone()
	if len(out.Rows) > 1 {
		out.Rows = out.Rows[:len(out.Rows)-1]
	}
	return domain.Normalize(out, m.now())
}

// UpdateRow merges patch into the row at index, leaving other rows untouched.
func (m *logManager) UpdateRow(record domain.LogRecord, index int, patch RowPatch) (domain.LogRecord, error) {
	return m.editRow(record, index, func(row *domain.ExerciseRow) error {
		if patch.MuscleGroup != nil {
			row.MuscleGroup = *patch.MuscleGroup
		}
		if patch.Exercise != nil {
			row.Exercise = *patch.Exercise
		}
		if patch.Notes != nil {
			row.Notes = *patch.Notes
		}
		if patch.ShowNotes != nil {
			row.ShowNotes = *patch.ShowNotes
		}
		if patch.WeightUnit != nil {
			row.WeightUnit = *patch.WeightUnit
		}
		if patch.Sets != nil {
			row.Sets = append([]domain.SetEntry(nil), patch.Sets...)
		}
		return nil
	})
}

// ToggleRowUnit converts every weight of the row to the other unit.
func (m *logManager) ToggleRowUnit(record domain.LogRecord, index int) (domain.LogRecord, error) {
	return m.editRow(record, index, func(row *domain.ExerciseRow) error {
		*row = row.ToggleUnit()
		return nil
	})
}

// AddSet appends an empty set to the row.
func (m *logManager) AddSet(record domain.LogRecord, rowIndex int) (domain.LogRecord, error) {
	return m.editRow(record, rowIndex, func(row *domain.ExerciseRow) error {
		row.Sets = append(row.Sets, domain.SetEntry{})
		return nil
	})
}

// RemoveSet deletes one set; the last remaining set is never removed.
func (m *logManager) RemoveSet(record domain.LogRecord, rowIndex, setIndex int) (domain.LogRecord, error) {
	return m.editRow(record, rowIndex, func(row *domain.ExerciseRow) error {
		if setIndex < 0 || setIndex >= len(row.Sets) {
			return fmt.Errorf("%w: set %d of %d", ErrIndexOutOfRange, setIndex, len(row.Sets))
		}
		if len(row.Sets) == 1 {
			return nil
		}
		row.Sets = append(row.Sets[:setIndex], row.Sets[setIndex+1:]...)
		return nil
	})
}

func (m *logManager) Rename(record domain.LogRecord, name string) domain.LogRecord {
	out := record.Clone()
	out.TableName = strings.TrimSpace(name)
	return domain.Normalize(out, m.now())
}

func (m *logManager) SetDate(record domain.LogRecord, date domain.LogDate) domain.LogRecord {
	out := record.Clone()
	out.Date = date
	return domain.Normalize(out, m.now())
}

func (m *logManager) editRow(record domain.LogRecord, index int, edit func(row *domain.ExerciseRow) error) (domain.LogRecord, error) {
	if index < 0 || index >= len(record.Rows) {
		log.WithFields(log.Fields{
			"logId": record.ID,
			"index": index,
			"rows":  len(record.Rows),
		}).Error("row index out of range")
		return record, fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, index, len(record.Rows))
	}

	out := record.Clone()
	if err := edit(&out.Rows[index]); err != nil {
		log.WithError(err).WithField("logId", record.ID).Error("row edit rejected")
		return record, err
	}
	return domain.Normalize(out, m.now()), nil
}

// UniqueMuscleGroups lists every muscle group used across the user's logs.
func (m *logManager) UniqueMuscleGroups(ctx context.Context) ([]string, error) {
	return m.collect(ctx, func(row domain.ExerciseRow) string { return row.MuscleGroup })
}

// UniqueExercises lists every exercise name used across the user's logs.
func (m *logManager) UniqueExercises(ctx context.Context) ([]string, error) {
	return m.collect(ctx, func(row domain.ExerciseRow) string { return row.Exercise })
}

// ExercisesForMuscleGroup lists exercises logged under group, ignoring case.
func (m *logManager) ExercisesForMuscleGroup(ctx context.Context, group string) ([]string, error) {
	group = strings.TrimSpace(group)
	return m.collect(ctx, func(row domain.ExerciseRow) string {
		if !strings.EqualFold(strings.TrimSpace(row.MuscleGroup), group) {
			return ""
		}
		return row.Exercise
	})
}

func (m *logManager) collect(ctx context.Context, pick func(domain.ExerciseRow) string) ([]string, error) {
	records, err := m.logs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}

	seen := make(map[string]struct{})
	for _, rec := range records {
		for _, row := range rec.Rows {
			if v := strings.TrimSpace(pick(row)); v != "" {
				seen[v] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
