// internal/domain/training_log.go
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// WeightUnit governs how SetEntry.Weight is interpreted.
type WeightUnit string

const (
	UnitLbs WeightUnit = "lbs"
	UnitKg  WeightUnit = "kg"
)

// Valid reports whether u is one of the supported units.
func (u WeightUnit) Valid() bool {
	return u == UnitLbs || u == UnitKg
}

// Other returns the opposite unit. Anything that is not kg flips to kg.
func (u WeightUnit) Other() WeightUnit {
	if u == UnitKg {
		return UnitLbs
	}
	return UnitKg
}

// DateLayout is the canonical session date format (plain ISO date).
const DateLayout = "2006-01-02"

// LogDate is the session date of a training log, always a plain ISO date string.
// Older clients sent it wrapped as {"today": "..."}; both forms decode to the same value.
type LogDate string

// DateOf formats t as a LogDate.
func DateOf(t time.Time) LogDate {
	return LogDate(t.Format(DateLayout))
}

func (d LogDate) String() string { return string(d) }

// UnmarshalJSON accepts a JSON string, the legacy {"today": "..."} wrapper, or null.
func (d *LogDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if data[0] == '{' {
		var wrapped struct {
			Today string `json:"today"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return fmt.Errorf("decode wrapped date: %w", err)
		}
		*d = LogDate(wrapped.Today)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	*d = LogDate(s)
	return nil
}

// SetEntry is a single set of an exercise. Empty strings mean "not filled in yet".
type SetEntry struct {
	Reps   string `bson:"reps" json:"reps"`
	Weight string `bson:"weight" json:"weight"` // Unit comes from the owning row
}

// UnmarshalJSON tolerates numeric reps/weight values sent by older importers.
func (s *SetEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Reps   json.RawMessage `json:"reps"`
		Weight json.RawMessage `json:"weight"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	reps, err := flexString(raw.Reps)
	if err != nil {
		return fmt.Errorf("reps: %w", err)
	}
	weight, err := flexString(raw.Weight)
	if err != nil {
		return fmt.Errorf("weight: %w", err)
	}
	s.Reps, s.Weight = reps, weight
	return nil
}

func flexString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// ExerciseRow is one exercise line of a training log.
type ExerciseRow struct {
	// ID is the row's position in the log. It is rewritten on every normalization
	// and must not be used to identify a row across edits; use Key for that.
	ID          int        `bson:"id" json:"id"`
	Key         string     `bson:"key" json:"key"` // Stable identifier assigned at creation
	MuscleGroup string     `bson:"muscleGroup" json:"muscleGroup"`
	Exercise    string     `bson:"exercise" json:"exercise"`
	Sets        []SetEntry `bson:"sets" json:"sets"`
	Notes       string     `bson:"notes" json:"notes"`
	ShowNotes   bool       `bson:"showNotes" json:"showNotes"` // Presentation flag, persisted with the row
	WeightUnit  WeightUnit `bson:"weightUnit" json:"weightUnit"`
}

// Clone returns a deep copy of the row.
func (r ExerciseRow) Clone() ExerciseRow {
	out := r
	if r.Sets != nil {
		out.Sets = make([]SetEntry, len(r.Sets))
		copy(out.Sets, r.Sets)
	}
	return out
}

// ToggleUnit returns a copy of the row with every set weight converted to the
// other unit. Conversion rounds to two decimals, so a lbs->kg->lbs round trip
// may drift by up to 0.01.
func (r ExerciseRow) ToggleUnit() ExerciseRow {
	from := r.WeightUnit
	if !from.Valid() {
		from = UnitLbs
	}
	to := from.Other()
	out := r.Clone()
	for i := range out.Sets {
		out.Sets[i].Weight = ConvertWeight(out.Sets[i].Weight, from, to)
	}
	out.WeightUnit = to
	return out
}

// LogRecord is one training log (a "table" in the web client).
type LogRecord struct {
	ID         string        `bson:"logId" json:"id"`
	TableName  string        `bson:"tableName" json:"tableName"`
	Date       LogDate       `bson:"date" json:"date"`
	LastOpened time.Time     `bson:"lastOpened" json:"lastOpened"` // Set by the store on every save
	Rows       []ExerciseRow `bson:"rows" json:"rows"`
}

// Clone returns a deep copy of the record.
func (l LogRecord) Clone() LogRecord {
	out := l
	if l.Rows != nil {
		out.Rows = make([]ExerciseRow, len(l.Rows))
		for i, row := range l.Rows {
			out.Rows[i] = row.Clone()
		}
	}
	return out
}

// Summary projects the fields shown in log listings.
func (l LogRecord) Summary() LogSummary {
	return LogSummary{
		ID:         l.ID,
		TableName:  l.TableName,
		Date:       l.Date,
		LastOpened: l.LastOpened,
	}
}

// LogSummary is a listing entry, ordered by LastOpened (most recent first).
type LogSummary struct {
	ID         string    `bson:"logId" json:"id"`
	TableName  string    `bson:"tableName" json:"tableName"`
	Date       LogDate   `bson:"date" json:"date"`
	LastOpened time.Time `bson:"lastOpened" json:"lastOpened"`
}

// DecodeLogRecord parses a JSON document into a LogRecord without normalizing it.
func DecodeLogRecord(data []byte) (LogRecord, error) {
	var rec LogRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return LogRecord{}, err
	}
	return rec, nil
}

// parseWeight parses a numeric weight string. ok is false for empty or non-numeric input.
func parseWeight(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
