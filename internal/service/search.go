package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"alcyxob/setpad/internal/domain"
)

// SearchQuery filters the user's logs. Term is matched loosely against names,
// exercises, muscle groups, notes, dates and set values. MuscleGroup keeps only
// logs with a row in that group; From and To bound the log date, inclusive.
type SearchQuery struct {
	Term        string         `form:"q"`
	MuscleGroup string         `form:"muscleGroup"`
	From        domain.LogDate `form:"from"`
	To          domain.LogDate `form:"to"`
}

func (q SearchQuery) filtered() bool {
	return q.MuscleGroup != "" || q.From != "" || q.To != ""
}

// Match types reported on a LogMatch.
const (
	MatchName        = "workout_name"
	MatchDate        = "date"
	MatchExercise    = "exercise"
	MatchMuscleGroup = "muscle_group"
	MatchNotes       = "notes"
	MatchWeight      = "weight"
	MatchReps        = "reps"
	MatchMultiple    = "multiple"
)

type LogMatch struct {
	domain.LogSummary
	MatchType        string   `json:"matchType,omitempty"`
	MatchedExercises []string `json:"matchedExercises"`
	Score            int      `json:"relevanceScore"`
}

type ExerciseMatch struct {
	Name         string         `json:"name"`
	MuscleGroup  string         `json:"muscleGroup"`
	WorkoutCount int            `json:"workoutCount"`
	LastUsed     domain.LogDate `json:"lastUsed"`
}

type MuscleGroupMatch struct {
	Name          string `json:"name"`
	ExerciseCount int    `json:"exerciseCount"`
	WorkoutCount  int    `json:"workoutCount"`
}

type Suggestion struct {
	Type  string `json:"type"` // exercise or muscle_group
	Value string `json:"value"`
}

type SearchResult struct {
	Logs         []LogMatch         `json:"workouts"`
	Exercises    []ExerciseMatch    `json:"exercises"`
	MuscleGroups []MuscleGroupMatch `json:"muscleGroups"`
	Suggestions  []Suggestion       `json:"suggestions"`
}

func emptySearchResult() *SearchResult {
	return &SearchResult{
		Logs:         []LogMatch{},
		Exercises:    []ExerciseMatch{},
		MuscleGroups: []MuscleGroupMatch{},
		Suggestions:  []Suggestion{},
	}
}

// Search looks through every log of the user. A blank term with no filters
// finds nothing; a blank term with filters lists every log that passes them.
func (m *logManager) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	term := strings.ToLower(strings.TrimSpace(q.Term))
	q.MuscleGroup = strings.TrimSpace(q.MuscleGroup)
	res := emptySearchResult()
	if term == "" && !q.filtered() {
		return res, nil
	}

	records, err := m.logs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}

	for _, rec := range records {
		if !q.admits(rec) {
			continue
		}
		if term == "" {
			res.Logs = append(res.Logs, LogMatch{LogSummary: rec.Summary(), MatchedExercises: []string{}})
			continue
		}
		if match, ok := matchLog(rec, term); ok {
			res.Logs = append(res.Logs, match)
		}
	}
	sort.SliceStable(res.Logs, func(i, j int) bool { return res.Logs[i].Score > res.Logs[j].Score })

	if term == "" {
		return res, nil
	}
	stats := collectStats(records)
	res.Exercises = stats.exerciseMatches(term)
	res.MuscleGroups = stats.muscleGroupMatches(term)
	res.Suggestions = stats.suggestions(term)
	return res, nil
}

func (q SearchQuery) admits(rec domain.LogRecord) bool {
	if q.From != "" && rec.Date < q.From {
		return false
	}
	if q.To != "" && rec.Date > q.To {
		return false
	}
	if q.MuscleGroup == "" {
		return true
	}
	for _, row := range rec.Rows {
		if strings.EqualFold(strings.TrimSpace(row.MuscleGroup), q.MuscleGroup) {
			return true
		}
	}
	return false
}

func matchLog(rec domain.LogRecord, term string) (LogMatch, bool) {
	match := LogMatch{LogSummary: rec.Summary(), MatchedExercises: []string{}}
	hit := func(kind string, score int) {
		if match.MatchType == "" {
			match.MatchType = kind
		} else {
			match.MatchType = MatchMultiple
		}
		match.Score += score
	}

	if fuzzyMatch(strings.ToLower(rec.TableName), term) {
		hit(MatchName, 10)
	}
	if strings.Contains(rec.Date.String(), term) {
		hit(MatchDate, 5)
	}

	seen := make(map[string]bool)
	for _, row := range rec.Rows {
		if row.Exercise != "" && fuzzyMatch(strings.ToLower(row.Exercise), term) {
			hit(MatchExercise, 8)
			if !seen[row.Exercise] {
				seen[row.Exercise] = true
				match.MatchedExercises = append(match.MatchedExercises, row.Exercise)
			}
		}
		if row.MuscleGroup != "" && fuzzyMatch(strings.ToLower(row.MuscleGroup), term) {
			hit(MatchMuscleGroup, 6)
		}
		if row.Notes != "" && fuzzyMatch(strings.ToLower(row.Notes), term) {
			hit(MatchNotes, 3)
		}
		for _, set := range row.Sets {
			if set.Weight != "" && strings.Contains(set.Weight, term) {
				hit(MatchWeight, 2)
			}
			if set.Reps != "" && strings.Contains(set.Reps, term) {
				hit(MatchReps, 2)
			}
		}
	}
	return match, match.Score > 0
}

type exerciseStat struct {
	name        string
	muscleGroup string
	rows        int
	lastUsed    domain.LogDate
}

type groupStat struct {
	name      string
	exercises map[string]struct{}
	logs      int
}

type searchStats struct {
	exercises map[string]*exerciseStat // keyed by lower-cased name
	groups    map[string]*groupStat
}

func collectStats(records []domain.LogRecord) searchStats {
	st := searchStats{exercises: map[string]*exerciseStat{}, groups: map[string]*groupStat{}}
	for _, rec := range records {
		inLog := make(map[string]bool)
		for _, row := range rec.Rows {
			exercise := strings.TrimSpace(row.Exercise)
			group := strings.TrimSpace(row.MuscleGroup)
			if exercise != "" {
				key := strings.ToLower(exercise)
				es, ok := st.exercises[key]
				if !ok {
					es = &exerciseStat{name: exercise, muscleGroup: group}
					st.exercises[key] = es
				}
				es.rows++
				if rec.Date > es.lastUsed {
					es.lastUsed = rec.Date
				}
			}
			if group != "" {
				key := strings.ToLower(group)
				gs, ok := st.groups[key]
				if !ok {
					gs = &groupStat{name: group, exercises: map[string]struct{}{}}
					st.groups[key] = gs
				}
				if exercise != "" {
					gs.exercises[strings.ToLower(exercise)] = struct{}{}
				}
				if !inLog[key] {
					inLog[key] = true
					gs.logs++
				}
			}
		}
	}
	return st
}

func (st searchStats) exerciseMatches(term string) []ExerciseMatch {
	out := []ExerciseMatch{}
	for key, es := range st.exercises {
		if fuzzyMatch(key, term) {
			out = append(out, ExerciseMatch{Name: es.name, MuscleGroup: es.muscleGroup, WorkoutCount: es.rows, LastUsed: es.lastUsed})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkoutCount != out[j].WorkoutCount {
			return out[i].WorkoutCount > out[j].WorkoutCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (st searchStats) muscleGroupMatches(term string) []MuscleGroupMatch {
	out := []MuscleGroupMatch{}
	for key, gs := range st.groups {
		if fuzzyMatch(key, term) {
			out = append(out, MuscleGroupMatch{Name: gs.name, ExerciseCount: len(gs.exercises), WorkoutCount: gs.logs})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkoutCount != out[j].WorkoutCount {
			return out[i].WorkoutCount > out[j].WorkoutCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// suggestions offers up to three exercises and two muscle groups that look
// like term without being equal to it.
func (st searchStats) suggestions(term string) []Suggestion {
	out := []Suggestion{}
	pick := func(keys []string, kind string, limit int) {
		sort.Strings(keys)
		n := 0
		for _, k := range keys {
			if n == limit {
				return
			}
			if k != term && fuzzyMatch(k, term) {
				out = append(out, Suggestion{Type: kind, Value: k})
				n++
			}
		}
	}

	exercises := make([]string, 0, len(st.exercises))
	for k := range st.exercises {
		exercises = append(exercises, k)
	}
	groups := make([]string, 0, len(st.groups))
	for k := range st.groups {
		groups = append(groups, k)
	}
	pick(exercises, MatchExercise, 3)
	pick(groups, MatchMuscleGroup, 2)
	return out
}

// fuzzyMatch reports whether text contains term, or some word of text and some
// word of term contain one another or are within a small edit distance.
// Both arguments are expected in lower case.
func fuzzyMatch(text, term string) bool {
	if strings.Contains(text, term) {
		return true
	}
	for _, termWord := range strings.Fields(term) {
		tolerance := max(1, len(termWord)*3/10)
		for _, textWord := range strings.Fields(text) {
			if strings.Contains(textWord, termWord) || strings.Contains(termWord, textWord) {
				return true
			}
			if levenshteinDistance(textWord, termWord) <= tolerance {
				return true
			}
		}
	}
	return false
}

func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
