package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/planstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingCatalog wraps fakeCatalog and fails create after a set number of
// successes.
type failingCatalog struct {
	*fakeCatalog
	failAfter int // number of creates to allow before failing; -1 disables
}

func (f *failingCatalog) Create(ctx context.Context, spec domain.NewExerciseSpec) (string, error) {
	if f.failAfter >= 0 && len(f.created) >= f.failAfter {
		return "", errors.New("catalog write failed")
	}
	return f.fakeCatalog.Create(ctx, spec)
}

// fakePlanStore is an in-memory plan store with optional session failure.
type fakePlanStore struct {
	plans            []planstore.PlanMeta
	sessions         map[string][]planstore.StoredSession
	sessionPayloads  []planstore.Session
	failSessionAfter int // sessions to allow per test before failing; -1 disables
	planErr          error
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{sessions: make(map[string][]planstore.StoredSession), failSessionAfter: -1}
}

func (f *fakePlanStore) CreatePlan(_ context.Context, meta planstore.PlanMeta) (string, error) {
	if f.planErr != nil {
		return "", f.planErr
	}
	f.plans = append(f.plans, meta)
	return fmt.Sprintf("plan-%d", len(f.plans)), nil
}

func (f *fakePlanStore) CreateSession(_ context.Context, planID string, session planstore.Session) (string, error) {
	if f.failSessionAfter >= 0 && len(f.sessions[planID]) >= f.failSessionAfter {
		return "", errors.New("plan store write failed")
	}
	id := fmt.Sprintf("sess-%s-%d", planID, len(f.sessions[planID]))
	f.sessions[planID] = append(f.sessions[planID], planstore.StoredSession{ID: id, Week: session.Week, Sequence: session.Sequence})
	f.sessionPayloads = append(f.sessionPayloads, session)
	return id, nil
}

func (f *fakePlanStore) ListSessions(_ context.Context, planID string) ([]planstore.StoredSession, error) {
	return f.sessions[planID], nil
}

func fourExercisePreview() (*domain.PlanPreview, []domain.NewExerciseSpec) {
	names := []string{"Alpha Lift", "Beta Lift", "Gamma Lift", "Delta Lift"}
	var weeks []domain.PlanWeek
	for w := 1; w <= 2; w++ {
		var sessions []domain.PlanSession
		for s := 0; s < 2; s++ {
			var exercises []domain.PlanExercise
			for _, n := range names {
				exercises = append(exercises, domain.PlanExercise{Name: n, Sets: 3, Reps: "10", RestSeconds: 60})
			}
			sessions = append(sessions, domain.PlanSession{Name: fmt.Sprintf("W%dD%d", w, s+1), Exercises: exercises})
		}
		weeks = append(weeks, domain.PlanWeek{Number: w, Sessions: sessions})
	}
	preview := &domain.PlanPreview{Name: "Plan", DurationWeeks: 2, FrequencyPerWeek: 2, Weeks: weeks}

	var specs []domain.NewExerciseSpec
	for _, n := range names {
		specs = append(specs, domain.NewExerciseSpec{Name: n})
	}
	return preview, specs
}

func TestPersistHappyPath(t *testing.T) {
	cat := &failingCatalog{fakeCatalog: &fakeCatalog{}, failAfter: -1}
	store := newFakePlanStore()
	p := NewPlanPersister(cat, store)

	preview, specs := fourExercisePreview()
	progress := &domain.PersistenceProgress{}

	persisted, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	require.NoError(t, err)

	assert.NotEmpty(t, persisted.PlanID)
	assert.Len(t, persisted.SessionIDs, 4)
	assert.Len(t, persisted.ExerciseIDs, 4)
	assert.Len(t, cat.created, 4)
	assert.Len(t, store.sessions[persisted.PlanID], 4)
}

func TestPersistPartialExerciseFailureResumes(t *testing.T) {
	cat := &failingCatalog{fakeCatalog: &fakeCatalog{}, failAfter: 2}
	store := newFakePlanStore()
	p := NewPlanPersister(cat, store)

	preview, specs := fourExercisePreview()
	progress := &domain.PersistenceProgress{}

	_, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	var partial *PartialPersistError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.ExercisesCreated)
	assert.Equal(t, 4, partial.ExercisesTotal)
	assert.False(t, partial.PlanCreated)

	// Created exercises are kept, not rolled back.
	assert.Len(t, cat.created, 2)

	// Retry with the recorded progress creates only the remaining two.
	cat.failAfter = -1
	persisted, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	require.NoError(t, err)
	assert.Len(t, cat.created, 4, "first two exercises must not be duplicated")
	assert.Len(t, persisted.ExerciseIDs, 4)
}

func TestPersistPartialSessionFailureRecreatesOnlyMissing(t *testing.T) {
	cat := &failingCatalog{fakeCatalog: &fakeCatalog{}, failAfter: -1}
	store := newFakePlanStore()
	store.failSessionAfter = 2
	p := NewPlanPersister(cat, store)

	preview, specs := fourExercisePreview()
	progress := &domain.PersistenceProgress{}

	_, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	var partial *PartialPersistError
	require.ErrorAs(t, err, &partial)
	assert.True(t, partial.PlanCreated)
	assert.Equal(t, 2, partial.SessionsCreated)
	assert.Equal(t, 4, partial.SessionsTotal)

	store.failSessionAfter = -1
	persisted, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	require.NoError(t, err)

	assert.Len(t, store.plans, 1, "plan metadata must not be recreated")
	assert.Len(t, store.sessions[persisted.PlanID], 4)
	assert.Len(t, persisted.SessionIDs, 4)

	// Exactly four create calls ever reached the store.
	assert.Len(t, store.sessionPayloads, 4)
}

func TestPersistIdempotentAfterSuccess(t *testing.T) {
	cat := &failingCatalog{fakeCatalog: &fakeCatalog{}, failAfter: -1}
	store := newFakePlanStore()
	p := NewPlanPersister(cat, store)

	preview, specs := fourExercisePreview()
	progress := &domain.PersistenceProgress{}

	first, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	require.NoError(t, err)

	second, err := p.Persist(context.Background(), preview, specs, "u1", progress)
	require.NoError(t, err)

	assert.Equal(t, first.PlanID, second.PlanID)
	assert.Equal(t, first.SessionIDs, second.SessionIDs)
	assert.Len(t, store.sessionPayloads, 4, "no duplicate sessions on rerun")
	assert.Len(t, cat.created, 4, "no duplicate exercises on rerun")
}

func TestPersistCrashRecoveryViaNameLookup(t *testing.T) {
	// Simulate a crash between the remote create and the progress record:
	// the exercise exists in the catalog but progress knows nothing.
	base := &fakeCatalog{}
	_, err := base.Create(context.Background(), domain.NewExerciseSpec{Name: "Alpha Lift"})
	require.NoError(t, err)

	cat := &failingCatalog{fakeCatalog: base, failAfter: -1}
	store := newFakePlanStore()
	p := NewPlanPersister(cat, store)

	preview, specs := fourExercisePreview()
	progress := &domain.PersistenceProgress{Attempts: 1} // marks a retry

	_, err = p.Persist(context.Background(), preview, specs, "u1", progress)
	require.NoError(t, err)

	// Alpha Lift was found by name, only the other three were created anew.
	assert.Len(t, cat.created, 4)
	var alphaCount int
	for _, c := range cat.created {
		if c.Name == "Alpha Lift" {
			alphaCount++
		}
	}
	assert.Equal(t, 1, alphaCount, "pre-existing exercise must not be created again")
}

func TestPersistRejectsUnresolvedExercises(t *testing.T) {
	cat := &failingCatalog{fakeCatalog: &fakeCatalog{}, failAfter: -1}
	store := newFakePlanStore()
	p := NewPlanPersister(cat, store)

	preview, _ := fourExercisePreview() // no specs for the unresolved names
	progress := &domain.PersistenceProgress{}

	_, err := p.Persist(context.Background(), preview, nil, "u1", progress)
	require.Error(t, err)
	assert.Empty(t, store.plans, "nothing should be written for an unresolvable preview")
}
