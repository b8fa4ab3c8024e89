package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"alcyxob/setpad/internal/domain"
)

var ErrUnknownTemplate = errors.New("unknown workout template")

// TemplateExercise is one planned exercise; weights are left for the user.
type TemplateExercise struct {
	MuscleGroup string   `json:"muscleGroup"`
	Exercise    string   `json:"exercise"`
	Reps        []string `json:"reps"` // one entry per set
	Notes       string   `json:"notes,omitempty"`
}

type Template struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Exercises   []TemplateExercise `json:"exercises"`
}

// TemplateSummary is what the template picker lists.
type TemplateSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ExerciseCount int    `json:"exerciseCount"`
}

func sets(n int, reps string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = reps
	}
	return out
}

var builtinTemplates = []Template{
	{
		ID: "push-day", Name: "Push Day", Description: "Chest, Shoulders, and Triceps workout",
		Exercises: []TemplateExercise{
			{MuscleGroup: "Chest", Exercise: "Bench Press", Reps: sets(3, "8-10"), Notes: "Focus on controlled movement"},
			{MuscleGroup: "Chest", Exercise: "Incline Dumbbell Press", Reps: sets(3, "10-12"), Notes: "45-degree incline"},
			{MuscleGroup: "Shoulders", Exercise: "Overhead Press", Reps: sets(3, "8-10"), Notes: "Keep core tight"},
			{MuscleGroup: "Shoulders", Exercise: "Lateral Raises", Reps: sets(3, "12-15"), Notes: "Control the negative"},
			{MuscleGroup: "Triceps", Exercise: "Tricep Dips", Reps: sets(3, "10-12"), Notes: "Full range of motion"},
		},
	},
	{
		ID: "pull-day", Name: "Pull Day", Description: "Back and Biceps workout",
		Exercises: []TemplateExercise{
			{MuscleGroup: "Back", Exercise: "Pull-ups", Reps: sets(3, "6-8"), Notes: "Use assistance if needed"},
			{MuscleGroup: "Back", Exercise: "Bent-over Rows", Reps: sets(3, "8-10"), Notes: "Squeeze shoulder blades"},
			{MuscleGroup: "Back", Exercise: "Lat Pulldowns", Reps: sets(3, "10-12"), Notes: "Pull to upper chest"},
			{MuscleGroup: "Biceps", Exercise: "Barbell Curls", Reps: sets(3, "10-12"), Notes: "No swinging"},
			{MuscleGroup: "Biceps", Exercise: "Hammer Curls", Reps: sets(3, "12-15"), Notes: "Neutral grip"},
		},
	},
	{
		ID: "leg-day", Name: "Leg Day", Description: "Comprehensive lower body workout",
		Exercises: []TemplateExercise{
			{MuscleGroup: "Legs", Exercise: "Squats", Reps: sets(4, "8-10"), Notes: "Go below parallel"},
			{MuscleGroup: "Legs", Exercise: "Romanian Deadlifts", Reps: sets(3, "8-10"), Notes: "Hinge at hips"},
			{MuscleGroup: "Legs", Exercise: "Leg Press", Reps: sets(3, "12-15"), Notes: "Full range of motion"},
			{MuscleGroup: "Legs", Exercise: "Walking Lunges", Reps: sets(3, "10-12 each leg"), Notes: "Step out wide"},
			{MuscleGroup: "Calves", Exercise: "Calf Raises", Reps: sets(3, "15-20"), Notes: "Pause at the top"},
		},
	},
	{
		ID: "upper-body", Name: "Upper Body", Description: "Complete upper body workout",
		Exercises: []TemplateExercise{
			{MuscleGroup: "Chest", Exercise: "Push-ups", Reps: sets(3, "10-15"), Notes: "Modify as needed"},
			{MuscleGroup: "Back", Exercise: "Inverted Rows", Reps: sets(3, "8-12"), Notes: "Body straight"},
			{MuscleGroup: "Shoulders", Exercise: "Pike Push-ups", Reps: sets(3, "6-10"), Notes: "Hands shoulder-width apart"},
			{MuscleGroup: "Arms", Exercise: "Diamond Push-ups", Reps: sets(2, "5-8"), Notes: "Targets triceps"},
		},
	},
	{
		ID: "cardio-strength", Name: "Cardio + Strength", Description: "High-intensity circuit training",
		Exercises: []TemplateExercise{
			{MuscleGroup: "Full Body", Exercise: "Burpees", Reps: sets(3, "10-15"), Notes: "30 sec rest between sets"},
			{MuscleGroup: "Legs", Exercise: "Jump Squats", Reps: sets(3, "15-20"), Notes: "Land softly"},
			{MuscleGroup: "Core", Exercise: "Mountain Climbers", Reps: sets(3, "20-30"), Notes: "Keep hips level"},
			{MuscleGroup: "Full Body", Exercise: "Kettlebell Swings", Reps: sets(3, "15-20"), Notes: "Hip drive, not arms"},
		},
	},
	{
		ID: "beginner-full-body", Name: "Beginner Full Body", Description: "Perfect for those starting their fitness journey",
		Exercises: []TemplateExercise{
			{MuscleGroup: "Legs", Exercise: "Bodyweight Squats", Reps: sets(2, "10-15"), Notes: "Focus on form"},
			{MuscleGroup: "Chest", Exercise: "Modified Push-ups", Reps: sets(2, "5-10"), Notes: "Knees down if needed"},
			{MuscleGroup: "Core", Exercise: "Plank", Reps: sets(2, "20-30 seconds"), Notes: "Keep body straight"},
			{MuscleGroup: "Legs", Exercise: "Glute Bridges", Reps: sets(2, "10-15"), Notes: "Squeeze glutes at top"},
		},
	},
}

var templatesByID = func() map[string]Template {
	m := make(map[string]Template, len(builtinTemplates))
	for _, t := range builtinTemplates {
		m[t.ID] = t
	}
	return m
}()

// Templates lists the built-in workout templates, in display order.
func (m *logManager) Templates() []TemplateSummary {
	out := make([]TemplateSummary, 0, len(builtinTemplates))
	for _, t := range builtinTemplates {
		out = append(out, TemplateSummary{
			ID:            t.ID,
			Name:          t.Name,
			Description:   t.Description,
			ExerciseCount: len(t.Exercises),
		})
	}
	return out
}

// CreateFromTemplate returns an unsaved log named after the template with one
// row per planned exercise. Rows with notes show them.
func (m *logManager) CreateFromTemplate(templateID string) (domain.LogRecord, error) {
	t, ok := templatesByID[templateID]
	if !ok {
		return domain.LogRecord{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateID)
	}

	rec := m.CreateNew()
	rec.TableName = t.Name
	rec.Rows = make([]domain.ExerciseRow, 0, len(t.Exercises))
	for _, ex := range t.Exercises {
		row := domain.ExerciseRow{
			Key:         uuid.NewString(),
			MuscleGroup: ex.MuscleGroup,
			Exercise:    ex.Exercise,
			Notes:       ex.Notes,
			ShowNotes:   ex.Notes != "",
			WeightUnit:  domain.UnitLbs,
		}
		for _, reps := range ex.Reps {
			row.Sets = append(row.Sets, domain.SetEntry{Reps: reps})
		}
		rec.Rows = append(rec.Rows, row)
	}
	return domain.Normalize(rec, m.now()), nil
}
