package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// NewLogName is the label given to logs created through the "new log" action.
	NewLogName = "New Log"
	// DefaultMuscleGroup is the placeholder muscle group of a backfilled row.
	DefaultMuscleGroup = "Strength-Focus"
	// LbsPerKg is the fixed conversion factor between the two weight units.
	LbsPerKg = 2.20462
)

// DefaultLogName is used when a record reaches normalization without a name.
func DefaultLogName(now time.Time) string {
	return "Training Log - " + now.Format("1/2/2006")
}

// NewRow is the row appended by the "add exercise" action: one empty set.
func NewRow() ExerciseRow {
	return ExerciseRow{
		Key:        uuid.NewString(),
		Sets:       []SetEntry{{}},
		WeightUnit: UnitLbs,
	}
}

// DefaultRow is the row backfilled into a log that has none: two empty sets.
func DefaultRow() ExerciseRow {
	return ExerciseRow{
		MuscleGroup: DefaultMuscleGroup,
		Sets:        []SetEntry{{}, {}},
		WeightUnit:  UnitLbs,
	}
}

// Normalize returns a copy of in that satisfies the log invariants:
// a name and date are present, there is at least one row, every row has at
// least one set and a valid unit, and row IDs equal their positions.
// Rows without a stable key receive one derived from the log ID and position,
// so the result depends only on in and now.
func Normalize(in LogRecord, now time.Time) LogRecord {
	out := in.Clone()

	if out.TableName == "" {
		out.TableName = DefaultLogName(now)
	}
	if out.Date == "" {
		out.Date = DateOf(now)
	}
	if len(out.Rows) == 0 {
		out.Rows = []ExerciseRow{DefaultRow()}
	}

	for i := range out.Rows {
		row := &out.Rows[i]
		if len(row.Sets) == 0 {
			row.Sets = []SetEntry{{}}
		}
		if !row.WeightUnit.Valid() {
			row.WeightUnit = UnitLbs
		}
		if row.Key == "" {
			row.Key = derivedRowKey(out.ID, i)
		}
		row.ID = i
	}
	return out
}

var rowKeyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("setpad:rows"))

func derivedRowKey(logID string, index int) string {
	return uuid.NewSHA1(rowKeyNamespace, []byte(fmt.Sprintf("%s/%d", logID, index))).String()
}

// ConvertWeight converts a weight string between units using LbsPerKg and
// formats the result with two decimals. Empty or non-numeric values and
// same-unit conversions are returned unchanged.
func ConvertWeight(value string, from, to WeightUnit) string {
	if from == to {
		return value
	}
	w, ok := parseWeight(value)
	if !ok {
		return value
	}
	if to == UnitKg {
		w = w / LbsPerKg
	} else {
		w = w * LbsPerKg
	}
	return strconv.FormatFloat(w, 'f', 2, 64)
}
