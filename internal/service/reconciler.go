package service

import (
	"context"
	"log"
	"strings"

	"fitcoach/plan-engine/internal/catalog"
	"fitcoach/plan-engine/internal/domain"
)

// ExerciseReconciler maps plan exercise names to catalog entries or flags
// them for creation.
type ExerciseReconciler interface {
	// Reconcile resolves every exercise in the preview in place and returns
	// the specs for exercises the catalog is missing. Catalog lookup errors
	// degrade to "no match"; they never fail the turn.
	Reconcile(ctx context.Context, preview *domain.PlanPreview, userID string) ([]domain.NewExerciseSpec, []domain.ExerciseMatch, error)
}

// exerciseReconciler implements ExerciseReconciler.
type exerciseReconciler struct {
	catalog catalog.Client
}

// NewExerciseReconciler creates a reconciler against the given catalog.
func NewExerciseReconciler(catalogClient catalog.Client) ExerciseReconciler {
	return &exerciseReconciler{catalog: catalogClient}
}

// synonymTable is the controlled vocabulary for the third matching layer.
// Both directions are applied during comparison.
var synonymTable = map[string]string{
	"press":    "push",
	"pushup":   "push-up",
	"pullup":   "pull-up",
	"chinup":   "chin-up",
	"squats":   "squat",
	"lunges":   "lunge",
	"curls":    "curl",
	"rows":     "row",
	"raises":   "raise",
	"db":       "dumbbell",
	"bb":       "barbell",
	"kb":       "kettlebell",
	"rdl":      "romanian deadlift",
	"ohp":      "overhead press",
	"lat":      "latissimus",
	"ab":       "abdominal",
	"abs":      "abdominal",
	"cardio":   "conditioning",
	"deadlift": "dead lift",
}

// muscleGroupKeywords infers default metadata for new exercise specs from
// the exercise name.
var muscleGroupKeywords = []struct {
	keyword string
	group   string
}{
	{"bench", "Chest"},
	{"chest", "Chest"},
	{"push-up", "Chest"},
	{"fly", "Chest"},
	{"row", "Back"},
	{"pull", "Back"},
	{"chin", "Back"},
	{"deadlift", "Back"},
	{"lat", "Back"},
	{"squat", "Legs"},
	{"lunge", "Legs"},
	{"leg", "Legs"},
	{"calf", "Legs"},
	{"glute", "Legs"},
	{"hamstring", "Legs"},
	{"hip", "Legs"},
	{"shoulder", "Shoulders"},
	{"overhead", "Shoulders"},
	{"lateral raise", "Shoulders"},
	{"press", "Shoulders"},
	{"curl", "Arms"},
	{"tricep", "Arms"},
	{"bicep", "Arms"},
	{"dip", "Arms"},
	{"plank", "Core"},
	{"crunch", "Core"},
	{"abdominal", "Core"},
	{"core", "Core"},
}

// equipmentKeywords maps name fragments to the equipment a new spec defaults to.
var equipmentKeywords = []struct {
	keyword   string
	equipment string
}{
	{"barbell", "Barbell"},
	{"dumbbell", "Dumbbell"},
	{"kettlebell", "Kettlebell"},
	{"cable", "Cable"},
	{"machine", "Machine"},
	{"band", "Resistance Band"},
	{"treadmill", "Treadmill"},
	{"bike", "Bike"},
}

// Reconcile walks every unique exercise name in the preview once, resolves
// it through the layered matcher, and rewrites matching entries in place.
// Results are memoized per normalized name for the duration of the pass, so
// a plan reusing "Bench Press" across 48 sessions performs one lookup.
func (r *exerciseReconciler) Reconcile(ctx context.Context, preview *domain.PlanPreview, userID string) ([]domain.NewExerciseSpec, []domain.ExerciseMatch, error) {
	memo := make(map[string]domain.ExerciseMatch)
	var matches []domain.ExerciseMatch
	var specs []domain.NewExerciseSpec
	specQueued := make(map[string]bool)

	for _, name := range preview.UniqueExerciseNames() {
		norm := normalizeExerciseName(name)
		match, seen := memo[norm]
		if !seen {
			match = r.resolve(ctx, name, norm)
			memo[norm] = match
			matches = append(matches, match)
		}

		if match.Resolution == domain.ResolutionCreate && !specQueued[norm] {
			specQueued[norm] = true
			specs = append(specs, domain.NewExerciseSpec{
				Name:        canonicalDisplayName(name),
				MuscleGroup: inferMuscleGroup(norm),
				Equipment:   inferEquipment(norm),
				Description: "Added automatically while importing a generated plan.",
			})
		}
	}

	// Rewrite plan entries with their resolved ids. Entries resolving to a
	// to-create spec stay empty here; the persister fills them in after
	// creation.
	for wi := range preview.Weeks {
		for si := range preview.Weeks[wi].Sessions {
			for ei := range preview.Weeks[wi].Sessions[si].Exercises {
				ex := &preview.Weeks[wi].Sessions[si].Exercises[ei]
				if m, ok := memo[normalizeExerciseName(ex.Name)]; ok && m.Resolution == domain.ResolutionReuse {
					ex.MatchedExerciseID = m.CatalogID
				}
			}
		}
	}

	return specs, matches, nil
}

// resolve applies the matching layers in order: exact case-insensitive,
// then substring, then synonym-normalized. The first layer producing a
// single high-confidence candidate wins; ambiguous ties count as no match,
// preferring a new catalog entry over a silent mis-assignment.
func (r *exerciseReconciler) resolve(ctx context.Context, name, norm string) domain.ExerciseMatch {
	candidates, err := r.catalog.Search(ctx, name)
	if err != nil {
		// Lookup failure degrades to creation.
		log.Printf("catalog lookup for %q failed, falling back to create: %v", name, err)
		return domain.ExerciseMatch{InputName: name, Resolution: domain.ResolutionCreate}
	}

	if m, ok := uniqueCandidate(candidates, norm, exactMatch); ok {
		return domain.ExerciseMatch{InputName: name, CatalogID: m.ID, Strategy: domain.MatchExact, Resolution: domain.ResolutionReuse}
	}
	if m, ok := uniqueCandidate(candidates, norm, partialMatch); ok {
		return domain.ExerciseMatch{InputName: name, CatalogID: m.ID, Strategy: domain.MatchPartial, Resolution: domain.ResolutionReuse}
	}
	if m, ok := uniqueCandidate(candidates, norm, synonymMatch); ok {
		return domain.ExerciseMatch{InputName: name, CatalogID: m.ID, Strategy: domain.MatchSynonym, Resolution: domain.ResolutionReuse}
	}

	return domain.ExerciseMatch{InputName: name, Resolution: domain.ResolutionCreate}
}

// uniqueCandidate returns the single candidate satisfying the predicate.
// Zero or more than one candidate both mean "no match".
func uniqueCandidate(candidates []domain.CatalogExercise, norm string, pred func(candidate, norm string) bool) (domain.CatalogExercise, bool) {
	var found domain.CatalogExercise
	count := 0
	for _, c := range candidates {
		if pred(normalizeExerciseName(c.Name), norm) {
			found = c
			count++
		}
	}
	return found, count == 1
}

func exactMatch(candidate, norm string) bool {
	return candidate == norm
}

func partialMatch(candidate, norm string) bool {
	return strings.Contains(candidate, norm) || strings.Contains(norm, candidate)
}

func synonymMatch(candidate, norm string) bool {
	return applySynonyms(candidate) == applySynonyms(norm)
}

// normalizeExerciseName lowercases, trims and collapses whitespace.
func normalizeExerciseName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), " ")
}

// applySynonyms rewrites each token through the controlled vocabulary.
func applySynonyms(norm string) string {
	tokens := strings.Fields(norm)
	for i, tok := range tokens {
		if repl, ok := synonymTable[tok]; ok {
			tokens[i] = repl
		}
	}
	return strings.Join(tokens, " ")
}

// canonicalDisplayName title-cases a normalized name for catalog creation.
func canonicalDisplayName(name string) string {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	for i, tok := range tokens {
		if len(tok) > 0 {
			tokens[i] = strings.ToUpper(tok[:1]) + tok[1:]
		}
	}
	return strings.Join(tokens, " ")
}

func inferMuscleGroup(norm string) string {
	expanded := applySynonyms(norm)
	for _, kw := range muscleGroupKeywords {
		if strings.Contains(expanded, kw.keyword) || strings.Contains(norm, kw.keyword) {
			return kw.group
		}
	}
	return "Full Body"
}

func inferEquipment(norm string) string {
	for _, kw := range equipmentKeywords {
		if strings.Contains(norm, kw.keyword) {
			return kw.equipment
		}
	}
	return "Bodyweight"
}
