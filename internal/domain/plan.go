package domain

// PlanExercise is one prescribed exercise inside a session of the preview.
type PlanExercise struct {
	Name        string `bson:"name" json:"name"`
	Sets        int    `bson:"sets" json:"sets"`
	Reps        string `bson:"reps" json:"reps"` // Free-form: "8-12", "AMRAP", "30s"
	RestSeconds int    `bson:"restSeconds" json:"rest_seconds"`

	// MatchedExerciseID is the catalog id this entry resolved to, or empty
	// when the exercise is flagged for creation.
	MatchedExerciseID string `bson:"matchedExerciseId,omitempty" json:"matched_exercise_id,omitempty"`
}

// PlanSession is a single workout day within a week of the preview.
type PlanSession struct {
	Name      string         `bson:"name" json:"name"` // e.g., "Day 1: Upper Body"
	Focus     string         `bson:"focus,omitempty" json:"focus,omitempty"`
	Exercises []PlanExercise `bson:"exercises" json:"exercises"`
}

// PlanWeek groups the sessions of one training week.
type PlanWeek struct {
	Number   int           `bson:"number" json:"number"` // 1-based
	Sessions []PlanSession `bson:"sessions" json:"sessions"`
}

// PlanPreview is an unpersisted, user-reviewable candidate plan produced by
// synthesis. It lives on the conversation until approved or replaced.
type PlanPreview struct {
	Name             string     `bson:"name" json:"name"`
	Description      string     `bson:"description,omitempty" json:"description,omitempty"`
	DurationWeeks    int        `bson:"durationWeeks" json:"duration_weeks"`
	FrequencyPerWeek int        `bson:"frequencyPerWeek" json:"frequency_per_week"`
	Weeks            []PlanWeek `bson:"weeks" json:"weeks"`
}

// SessionCount returns the total number of sessions across all weeks.
func (p *PlanPreview) SessionCount() int {
	n := 0
	for _, w := range p.Weeks {
		n += len(w.Sessions)
	}
	return n
}

// UniqueExerciseNames returns every distinct exercise name in the preview,
// in first-appearance order.
func (p *PlanPreview) UniqueExerciseNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, w := range p.Weeks {
		for _, s := range w.Sessions {
			for _, e := range s.Exercises {
				if !seen[e.Name] {
					seen[e.Name] = true
					names = append(names, e.Name)
				}
			}
		}
	}
	return names
}

// PersistedPlan describes a plan after ownership transferred to the remote
// workout store: the plan id, its session ids in order, and every exercise
// id the sessions reference.
type PersistedPlan struct {
	PlanID      string   `json:"plan_id"`
	SessionIDs  []string `json:"session_ids"`
	ExerciseIDs []string `json:"exercise_ids"`
}
