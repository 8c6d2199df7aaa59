package service

import (
	"errors"
	"fmt"
)

// --- Error Definitions ---
var (
	// ErrUserInput marks an ambiguous or unusable message; the caller should
	// re-prompt the user rather than fail the conversation.
	ErrUserInput = errors.New("could not interpret message")

	// ErrModel marks a model failure (timeout, exhausted retries, or output
	// that stayed malformed after a repair attempt).
	ErrModel = errors.New("model invocation failed")

	// ErrConversationNotFound is returned for an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
)

// PartialPersistError reports a persist attempt that committed some remote
// writes before failing. Progress is recorded on the conversation, so a
// retried approval resumes instead of duplicating work.
type PartialPersistError struct {
	ExercisesCreated int
	ExercisesTotal   int
	PlanCreated      bool
	SessionsCreated  int
	SessionsTotal    int
	Err              error
}

func (e *PartialPersistError) Error() string {
	return fmt.Sprintf("plan persistence incomplete (exercises %d/%d, plan created=%t, sessions %d/%d): %v",
		e.ExercisesCreated, e.ExercisesTotal, e.PlanCreated, e.SessionsCreated, e.SessionsTotal, e.Err)
}

func (e *PartialPersistError) Unwrap() error {
	return e.Err
}
