package service

import (
	"context"
	"fmt"
	"log"

	"fitcoach/plan-engine/internal/catalog"
	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/planstore"
)

// PlanPersister writes an approved plan through the remote catalog and
// workout store. There is no distributed transaction: each attempt walks
// CREATE_EXERCISES -> CREATE_PLAN -> CREATE_SESSIONS and records progress,
// so a retried approval resumes where the last attempt stopped.
type PlanPersister interface {
	// Persist runs one attempt, mutating progress as remote writes land.
	// The caller stores progress on the conversation regardless of outcome.
	// On success it returns the persisted plan. Mid-attempt failures return
	// a *PartialPersistError; completed work is kept, never rolled back.
	Persist(ctx context.Context, preview *domain.PlanPreview, specs []domain.NewExerciseSpec, userID string, progress *domain.PersistenceProgress) (*domain.PersistedPlan, error)
}

// planPersister implements PlanPersister.
type planPersister struct {
	catalog catalog.Client
	store   planstore.Client
}

// NewPlanPersister creates a persister over the two remote write targets.
func NewPlanPersister(catalogClient catalog.Client, storeClient planstore.Client) PlanPersister {
	return &planPersister{catalog: catalogClient, store: storeClient}
}

func (p *planPersister) Persist(ctx context.Context, preview *domain.PlanPreview, specs []domain.NewExerciseSpec, userID string, progress *domain.PersistenceProgress) (*domain.PersistedPlan, error) {
	if progress.CreatedExerciseIDs == nil {
		progress.CreatedExerciseIDs = make(map[string]string)
	}
	retry := progress.Attempts > 0
	progress.Attempts++

	// --- CREATE_EXERCISES ---
	// Already-created exercises are valid catalog entries and are skipped on
	// retry, first via the recorded progress, then via a name lookup in case
	// the previous attempt crashed between the remote write and the record.
	for _, spec := range specs {
		norm := normalizeExerciseName(spec.Name)
		if _, done := progress.CreatedExerciseIDs[norm]; done {
			continue
		}

		if retry {
			if id, ok := p.findExisting(ctx, spec.Name); ok {
				progress.CreatedExerciseIDs[norm] = id
				continue
			}
		}

		id, err := p.catalog.Create(ctx, spec)
		if err != nil {
			return nil, p.partial(progress, specs, preview, fmt.Errorf("create exercise %q: %w", spec.Name, err))
		}
		progress.CreatedExerciseIDs[norm] = id
	}

	// Fill in ids for plan entries that were flagged for creation.
	for wi := range preview.Weeks {
		for si := range preview.Weeks[wi].Sessions {
			for ei := range preview.Weeks[wi].Sessions[si].Exercises {
				ex := &preview.Weeks[wi].Sessions[si].Exercises[ei]
				if ex.MatchedExerciseID == "" {
					if id, ok := progress.CreatedExerciseIDs[normalizeExerciseName(ex.Name)]; ok {
						ex.MatchedExerciseID = id
					}
				}
			}
		}
	}

	// Invariant check: after reconciliation plus creation every entry must
	// reference a catalog id. An unresolved entry is a programming error on
	// the calling side, not something to persist around.
	for _, w := range preview.Weeks {
		for _, s := range w.Sessions {
			for _, e := range s.Exercises {
				if e.MatchedExerciseID == "" {
					return nil, fmt.Errorf("exercise %q has no catalog id and no creation spec", e.Name)
				}
			}
		}
	}

	// --- CREATE_PLAN ---
	planJustCreated := false
	if progress.PlanID == "" {
		planJustCreated = true
		planID, err := p.store.CreatePlan(ctx, planstore.PlanMeta{
			UserID:           userID,
			Name:             preview.Name,
			Description:      preview.Description,
			DurationWeeks:    preview.DurationWeeks,
			FrequencyPerWeek: preview.FrequencyPerWeek,
		})
		if err != nil {
			return nil, p.partial(progress, specs, preview, fmt.Errorf("create plan: %w", err))
		}
		progress.PlanID = planID
	}

	// --- CREATE_SESSIONS ---
	// On retry, existing sessions are detected by absence against the store
	// listing; a session is only ever created when its (week, sequence) slot
	// is empty.
	existing := map[sessionSlot]string{}
	if !planJustCreated {
		var err error
		existing, err = p.existingSessionSlots(ctx, progress.PlanID)
		if err != nil {
			return nil, p.partial(progress, specs, preview, fmt.Errorf("list sessions: %w", err))
		}
	}

	var sessionIDs []string
	sequence := 0
	for _, week := range preview.Weeks {
		for _, session := range week.Sessions {
			slot := sessionSlot{week: week.Number, sequence: sequence}
			sequence++

			if id, ok := existing[slot]; ok {
				sessionIDs = append(sessionIDs, id)
				continue
			}

			payload := planstore.Session{
				Week:     week.Number,
				Sequence: slot.sequence,
				Name:     session.Name,
			}
			for _, ex := range session.Exercises {
				payload.Exercises = append(payload.Exercises, planstore.SessionExercise{
					ExerciseID:  ex.MatchedExerciseID,
					Sets:        ex.Sets,
					Reps:        ex.Reps,
					RestSeconds: ex.RestSeconds,
				})
			}

			id, err := p.store.CreateSession(ctx, progress.PlanID, payload)
			if err != nil {
				progress.SessionsCreated = len(sessionIDs)
				return nil, p.partial(progress, specs, preview, fmt.Errorf("create session week %d seq %d: %w", slot.week, slot.sequence, err))
			}
			sessionIDs = append(sessionIDs, id)
		}
	}
	progress.SessionsCreated = len(sessionIDs)

	// --- DONE ---
	persisted := &domain.PersistedPlan{
		PlanID:     progress.PlanID,
		SessionIDs: sessionIDs,
	}
	idSeen := make(map[string]bool)
	for _, w := range preview.Weeks {
		for _, s := range w.Sessions {
			for _, e := range s.Exercises {
				if !idSeen[e.MatchedExerciseID] {
					idSeen[e.MatchedExerciseID] = true
					persisted.ExerciseIDs = append(persisted.ExerciseIDs, e.MatchedExerciseID)
				}
			}
		}
	}
	return persisted, nil
}

// findExisting checks whether a spec's exercise already exists under its
// exact normalized name, making creation idempotent across crashed attempts.
// Lookup errors are treated as "not found"; worst case the create below
// reports the real failure.
func (p *planPersister) findExisting(ctx context.Context, name string) (string, bool) {
	candidates, err := p.catalog.Search(ctx, name)
	if err != nil {
		log.Printf("idempotency lookup for %q failed: %v", name, err)
		return "", false
	}
	norm := normalizeExerciseName(name)
	for _, c := range candidates {
		if normalizeExerciseName(c.Name) == norm {
			return c.ID, true
		}
	}
	return "", false
}

type sessionSlot struct {
	week     int
	sequence int
}

func (p *planPersister) existingSessionSlots(ctx context.Context, planID string) (map[sessionSlot]string, error) {
	stored, err := p.store.ListSessions(ctx, planID)
	if err != nil {
		return nil, err
	}
	slots := make(map[sessionSlot]string, len(stored))
	for _, s := range stored {
		slots[sessionSlot{week: s.Week, sequence: s.Sequence}] = s.ID
	}
	return slots, nil
}

// partial wraps err with progress counts for the orchestrator's retryable
// "partial" report.
func (p *planPersister) partial(progress *domain.PersistenceProgress, specs []domain.NewExerciseSpec, preview *domain.PlanPreview, err error) error {
	return &PartialPersistError{
		ExercisesCreated: len(progress.CreatedExerciseIDs),
		ExercisesTotal:   len(specs),
		PlanCreated:      progress.PlanID != "",
		SessionsCreated:  progress.SessionsCreated,
		SessionsTotal:    preview.SessionCount(),
		Err:              err,
	}
}
