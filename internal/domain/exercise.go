package domain

// CatalogExercise is an exercise definition as returned by the remote catalog.
type CatalogExercise struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MuscleGroup string `json:"muscleGroup,omitempty"`
	Equipment   string `json:"equipment,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"` // e.g., "Novice", "Medium", "Advanced"
}

// NewExerciseSpec describes an exercise the plan references but the catalog
// does not contain yet. Metadata defaults are inferred from plan context.
type NewExerciseSpec struct {
	Name        string `json:"name"`
	MuscleGroup string `json:"muscleGroup,omitempty"`
	Equipment   string `json:"equipment,omitempty"`
	Description string `json:"description,omitempty"`
}

// MatchStrategy identifies which matching layer produced a candidate.
type MatchStrategy string

const (
	MatchExact   MatchStrategy = "exact"
	MatchPartial MatchStrategy = "partial"
	MatchSynonym MatchStrategy = "synonym"
)

// MatchResolution says what reconciliation decided for a name.
type MatchResolution string

const (
	ResolutionReuse  MatchResolution = "reuse"
	ResolutionCreate MatchResolution = "create"
)

// ExerciseMatch records the outcome of reconciling one plan exercise name
// against the catalog.
type ExerciseMatch struct {
	InputName  string          `json:"input_name"`
	CatalogID  string          `json:"catalog_id,omitempty"` // Empty when Resolution is create
	Strategy   MatchStrategy   `json:"strategy,omitempty"`
	Resolution MatchResolution `json:"resolution"`
}
