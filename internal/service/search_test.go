package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/setpad/internal/domain"
)

func seedSearchLogs(t *testing.T) LogManager {
	t.Helper()
	m, repo := newTestManager(nil)
	ctx := userCtx()
	logs := []domain.LogRecord{
		{ID: "a", TableName: "Push Day", Date: "2024-03-01", Rows: []domain.ExerciseRow{
			{MuscleGroup: "Chest", Exercise: "Bench Press", Sets: []domain.SetEntry{{Reps: "8", Weight: "185"}}},
			{MuscleGroup: "Shoulders", Exercise: "Overhead Press", Notes: "strict form"},
		}},
		{ID: "b", TableName: "Legs", Date: "2024-03-05", Rows: []domain.ExerciseRow{
			{MuscleGroup: "Legs", Exercise: "Squat", Sets: []domain.SetEntry{{Reps: "5", Weight: "225"}}},
		}},
		{ID: "c", TableName: "Chest again", Date: "2024-04-02", Rows: []domain.ExerciseRow{
			{MuscleGroup: "chest", Exercise: "bench press"},
		}},
	}
	for _, rec := range logs {
		_, err := repo.Put(ctx, rec)
		require.NoError(t, err)
	}
	return m
}

func logIDs(matches []LogMatch) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestSearchByExercise(t *testing.T) {
	m := seedSearchLogs(t)

	res, err := m.Search(userCtx(), SearchQuery{Term: "  Bench "})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "c"}, logIDs(res.Logs))
	for _, match := range res.Logs {
		assert.Equal(t, MatchExercise, match.MatchType)
		assert.Equal(t, 8, match.Score)
	}

	require.Len(t, res.Exercises, 1, "exercise names are grouped ignoring case")
	assert.Equal(t, 2, res.Exercises[0].WorkoutCount)
	assert.Equal(t, domain.LogDate("2024-04-02"), res.Exercises[0].LastUsed)
	assert.Empty(t, res.MuscleGroups)
}

func TestSearchScoresAndMatchTypes(t *testing.T) {
	m := seedSearchLogs(t)

	res, err := m.Search(userCtx(), SearchQuery{Term: "chest"})
	require.NoError(t, err)

	require.Len(t, res.Logs, 2)
	assert.Equal(t, "c", res.Logs[0].ID, "name and muscle group outrank muscle group alone")
	assert.Equal(t, MatchMultiple, res.Logs[0].MatchType)
	assert.Equal(t, 16, res.Logs[0].Score)
	assert.Equal(t, MatchMuscleGroup, res.Logs[1].MatchType)

	require.Len(t, res.MuscleGroups, 1)
	assert.Equal(t, 2, res.MuscleGroups[0].WorkoutCount)
	assert.Equal(t, 1, res.MuscleGroups[0].ExerciseCount)
}

func TestSearchToleratesTypos(t *testing.T) {
	m := seedSearchLogs(t)

	res, err := m.Search(userCtx(), SearchQuery{Term: "squaat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, logIDs(res.Logs))
	assert.Contains(t, res.Suggestions, Suggestion{Type: MatchExercise, Value: "squat"})
}

func TestSearchFilters(t *testing.T) {
	m := seedSearchLogs(t)
	ctx := userCtx()

	res, err := m.Search(ctx, SearchQuery{Term: "press", From: "2024-04-01"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, logIDs(res.Logs))

	res, err = m.Search(ctx, SearchQuery{Term: "press", MuscleGroup: "shoulders"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, logIDs(res.Logs))

	res, err = m.Search(ctx, SearchQuery{To: "2024-03-31"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, logIDs(res.Logs), "filters alone list matching logs")
	assert.Empty(t, res.Exercises)
}

func TestSearchBlankQuery(t *testing.T) {
	m := seedSearchLogs(t)

	res, err := m.Search(userCtx(), SearchQuery{Term: "   "})
	require.NoError(t, err)
	assert.Empty(t, res.Logs)
	assert.NotNil(t, res.Logs, "encodes as an empty list")
}

func TestSearchStoreFailure(t *testing.T) {
	boom := assert.AnError
	m := NewLogManager(failingRepo{err: boom}, nil, fixedClock)

	_, err := m.Search(userCtx(), SearchQuery{Term: "bench"})
	assert.ErrorIs(t, err, boom)
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		text, term string
		want       bool
	}{
		{"bench press", "bench", true},
		{"bench press", "press bench", true},
		{"deadlift", "dedlift", true},
		{"squat", "curl", false},
		{"romanian deadlifts", "row", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fuzzyMatch(tt.text, tt.term), "%q ~ %q", tt.text, tt.term)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("squat", "squat"))
	assert.Equal(t, 2, levenshteinDistance("squat", "sqaut"))
	assert.Equal(t, 3, levenshteinDistance("", "row"))
	assert.Equal(t, 1, levenshteinDistance("café", "cafe"))
}
