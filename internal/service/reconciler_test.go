package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fitcoach/plan-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is an in-memory catalog recording searches and creates.
type fakeCatalog struct {
	exercises []domain.CatalogExercise
	searches  []string
	created   []domain.NewExerciseSpec
	searchErr error
	createErr error
	nextID    int
}

func (f *fakeCatalog) Search(_ context.Context, name string) ([]domain.CatalogExercise, error) {
	f.searches = append(f.searches, name)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	// Loose remote search: return anything sharing a token with the query.
	var out []domain.CatalogExercise
	queryTokens := strings.Fields(strings.ToLower(name))
	for _, ex := range f.exercises {
		lower := strings.ToLower(ex.Name)
		for _, tok := range queryTokens {
			if strings.Contains(lower, tok) {
				out = append(out, ex)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) Create(_ context.Context, spec domain.NewExerciseSpec) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, spec)
	f.nextID++
	id := "new-" + string(rune('a'+f.nextID-1))
	f.exercises = append(f.exercises, domain.CatalogExercise{ID: id, Name: spec.Name})
	return id, nil
}

func previewWith(names ...string) *domain.PlanPreview {
	session := domain.PlanSession{Name: "Day 1"}
	for _, n := range names {
		session.Exercises = append(session.Exercises, domain.PlanExercise{Name: n, Sets: 3, Reps: "8-12", RestSeconds: 90})
	}
	return &domain.PlanPreview{
		Name:             "Test Plan",
		DurationWeeks:    1,
		FrequencyPerWeek: 1,
		Weeks:            []domain.PlanWeek{{Number: 1, Sessions: []domain.PlanSession{session}}},
	}
}

func TestReconcileNoDuplicateExercises(t *testing.T) {
	cat := &fakeCatalog{exercises: []domain.CatalogExercise{{ID: "ex-1", Name: "Bench Press"}}}
	rec := NewExerciseReconciler(cat)

	preview := previewWith("Bench Press", "bench press", "Barbell Bench Press")
	specs, matches, err := rec.Reconcile(context.Background(), preview, "u1")
	require.NoError(t, err)

	// "Bench Press" and "bench press" are one normalized name; "Barbell
	// Bench Press" resolves by partial match. Nothing needs creating.
	assert.LessOrEqual(t, len(specs), 1)
	reuses := 0
	for _, m := range matches {
		if m.Resolution == domain.ResolutionReuse {
			reuses++
			assert.Equal(t, "ex-1", m.CatalogID)
		}
	}
	assert.GreaterOrEqual(t, reuses, 2)
}

func TestReconcileMemoizesPerNormalizedName(t *testing.T) {
	cat := &fakeCatalog{exercises: []domain.CatalogExercise{{ID: "ex-1", Name: "Bench Press"}}}
	rec := NewExerciseReconciler(cat)

	// Twelve sessions all reusing the same exercise under case variants.
	var weeks []domain.PlanWeek
	for w := 1; w <= 4; w++ {
		var sessions []domain.PlanSession
		for s := 0; s < 3; s++ {
			sessions = append(sessions, domain.PlanSession{
				Name:      "Day",
				Exercises: []domain.PlanExercise{{Name: "Bench Press", Sets: 3, Reps: "10", RestSeconds: 60}},
			})
		}
		weeks = append(weeks, domain.PlanWeek{Number: w, Sessions: sessions})
	}
	preview := &domain.PlanPreview{Name: "P", DurationWeeks: 4, FrequencyPerWeek: 3, Weeks: weeks}

	_, _, err := rec.Reconcile(context.Background(), preview, "u1")
	require.NoError(t, err)
	assert.Len(t, cat.searches, 1, "one catalog lookup per unique normalized name")
}

func TestReconcileAmbiguousTieCreates(t *testing.T) {
	cat := &fakeCatalog{exercises: []domain.CatalogExercise{
		{ID: "ex-1", Name: "Front Squat"},
		{ID: "ex-2", Name: "Back Squat"},
	}}
	rec := NewExerciseReconciler(cat)

	specs, matches, err := rec.Reconcile(context.Background(), previewWith("Squat"), "u1")
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, domain.ResolutionCreate, matches[0].Resolution, "ambiguous ties must not mis-assign")
	require.Len(t, specs, 1)
	assert.Equal(t, "Squat", specs[0].Name)
}

func TestReconcileSynonymMatch(t *testing.T) {
	cat := &fakeCatalog{exercises: []domain.CatalogExercise{{ID: "ex-1", Name: "Shoulder Press"}}}
	rec := NewExerciseReconciler(cat)

	_, matches, err := rec.Reconcile(context.Background(), previewWith("Shoulder Push"), "u1")
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, domain.ResolutionReuse, matches[0].Resolution)
	assert.Equal(t, domain.MatchSynonym, matches[0].Strategy)
}

func TestReconcileLookupErrorFallsBackToCreate(t *testing.T) {
	cat := &fakeCatalog{searchErr: errors.New("catalog down")}
	rec := NewExerciseReconciler(cat)

	specs, matches, err := rec.Reconcile(context.Background(), previewWith("Goblet Squat"), "u1")
	require.NoError(t, err, "lookup failure must not fail the turn")
	require.Len(t, matches, 1)
	assert.Equal(t, domain.ResolutionCreate, matches[0].Resolution)
	assert.Len(t, specs, 1)
}

func TestReconcileResolvesPlanEntriesInPlace(t *testing.T) {
	cat := &fakeCatalog{exercises: []domain.CatalogExercise{{ID: "ex-9", Name: "Deadlift"}}}
	rec := NewExerciseReconciler(cat)

	preview := previewWith("Deadlift", "Nordic Curl Of Doom")
	_, _, err := rec.Reconcile(context.Background(), preview, "u1")
	require.NoError(t, err)

	exercises := preview.Weeks[0].Sessions[0].Exercises
	assert.Equal(t, "ex-9", exercises[0].MatchedExerciseID)
	assert.Empty(t, exercises[1].MatchedExerciseID, "to-create entries stay unresolved until persistence")
}

func TestInferDefaultMetadata(t *testing.T) {
	tests := []struct {
		name      string
		group     string
		equipment string
	}{
		{"barbell bench press", "Chest", "Barbell"},
		{"goblet squat", "Legs", "Bodyweight"},
		{"cable row", "Back", "Cable"},
		{"weighted plank", "Core", "Bodyweight"},
		{"mystery movement", "Full Body", "Bodyweight"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.group, inferMuscleGroup(tt.name), tt.name)
		assert.Equal(t, tt.equipment, inferEquipment(tt.name), tt.name)
	}
}
