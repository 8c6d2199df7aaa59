package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationState type for the plan-building dialogue lifecycle.
type ConversationState string

const (
	StateGathering        ConversationState = "gathering"         // Still collecting requirements
	StateAwaitingApproval ConversationState = "awaiting_approval" // Preview generated, waiting on the user
	StateComplete         ConversationState = "complete"          // Plan persisted, terminal
)

// TurnRole identifies who produced a turn in the history.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// Turn is a single message in the conversation history.
type Turn struct {
	Role      TurnRole  `bson:"role" json:"role"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Requirements holds the structured training requirements gathered across turns.
// A zero value for a numeric field means "not yet provided".
type Requirements struct {
	Goal             string   `bson:"goal,omitempty" json:"goal,omitempty"`
	DurationWeeks    int      `bson:"durationWeeks,omitempty" json:"duration_weeks,omitempty"`
	FrequencyPerWeek int      `bson:"frequencyPerWeek,omitempty" json:"frequency_per_week,omitempty"`
	Equipment        []string `bson:"equipment,omitempty" json:"equipment,omitempty"`
	InjuryNotes      []string `bson:"injuryNotes,omitempty" json:"injury_notes,omitempty"`
	ExperienceLevel  string   `bson:"experienceLevel,omitempty" json:"experience_level,omitempty"`
}

// Supported bounds for numeric requirement fields.
const (
	MinDurationWeeks    = 1
	MaxDurationWeeks    = 52
	MinFrequencyPerWeek = 1
	MaxFrequencyPerWeek = 7
)

// Mandatory requirement field names, in the order they are reported back
// to the user when missing. Equipment, injuries and experience level shape
// the plan but never block synthesis.
var MandatoryFields = []string{"goal", "duration_weeks", "frequency_per_week"}

// MissingFields returns the mandatory fields that have not been gathered
// yet, in MandatoryFields order.
func (r Requirements) MissingFields() []string {
	var missing []string
	for _, f := range MandatoryFields {
		if !r.has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func (r Requirements) has(field string) bool {
	switch field {
	case "goal":
		return r.Goal != ""
	case "duration_weeks":
		return r.DurationWeeks != 0
	case "frequency_per_week":
		return r.FrequencyPerWeek != 0
	}
	return true
}

// Complete reports whether every mandatory field is present and the numeric
// fields are inside supported bounds.
func (r Requirements) Complete() bool {
	if len(r.MissingFields()) > 0 {
		return false
	}
	if r.DurationWeeks < MinDurationWeeks || r.DurationWeeks > MaxDurationWeeks {
		return false
	}
	if r.FrequencyPerWeek < MinFrequencyPerWeek || r.FrequencyPerWeek > MaxFrequencyPerWeek {
		return false
	}
	return true
}

// PersistenceProgress records how far a persist attempt got so a retried
// approval can skip completed work instead of duplicating it.
type PersistenceProgress struct {
	// CreatedExerciseIDs maps normalized exercise name to the catalog id
	// created for it. Entries survive failed attempts; created exercises
	// are valid catalog entries and are never rolled back.
	CreatedExerciseIDs map[string]string `bson:"createdExerciseIds,omitempty" json:"created_exercise_ids,omitempty"`

	// PlanID is set once plan metadata has been created remotely.
	PlanID string `bson:"planId,omitempty" json:"plan_id,omitempty"`

	// SessionsCreated counts sessions confirmed to exist remotely.
	SessionsCreated int `bson:"sessionsCreated,omitempty" json:"sessions_created,omitempty"`

	// Attempts counts persist attempts. Anything above one makes the
	// persister double-check remote state before each write.
	Attempts int `bson:"attempts,omitempty" json:"attempts,omitempty"`
}

// Conversation is the unit of state for one user's plan-creation dialogue.
// It exclusively owns the requirements and the preview until approval, at
// which point ownership of the plan transfers to the remote workout store
// and only the approval record (plan id) remains here.
type Conversation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       string             `bson:"userId" json:"userId"`
	State        ConversationState  `bson:"state" json:"state"`
	Requirements Requirements       `bson:"requirements" json:"requirements"`
	Preview      *PlanPreview       `bson:"preview,omitempty" json:"preview,omitempty"`
	Turns        []Turn             `bson:"turns" json:"turns"`

	// Progress markers for the persist state machine. Nil until the first
	// approval attempt.
	Persistence *PersistenceProgress `bson:"persistence,omitempty" json:"persistence,omitempty"`

	// PlanID is the approval record: set exactly once, when persistence
	// fully succeeds and the conversation becomes complete.
	PlanID string `bson:"planId,omitempty" json:"planId,omitempty"`

	// Version guards optimistic saves. Each committed turn increments it,
	// so redelivery of an already-applied turn matches nothing and is a no-op.
	Version int64 `bson:"version" json:"version"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// AppendTurn adds a message to the ordered history.
func (c *Conversation) AppendTurn(role TurnRole, text string) {
	c.Turns = append(c.Turns, Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
}
