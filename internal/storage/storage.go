package storage

import (
	"context"

	"fitcoach/plan-engine/internal/domain"
)

// PlanSnapshot is the audit record archived when a plan is approved: the
// persisted ids plus the exact preview the user signed off on.
type PlanSnapshot struct {
	ConversationID string               `json:"conversationId"`
	UserID         string               `json:"userId"`
	Plan           domain.PersistedPlan `json:"plan"`
	Preview        domain.PlanPreview   `json:"preview"`
}

// PlanArchive defines the interface for archiving approved plan snapshots.
type PlanArchive interface {
	// StorePlanSnapshot writes the snapshot to the archive. Callers treat
	// failures as non-fatal; the plan itself already lives in the workout
	// store.
	StorePlanSnapshot(ctx context.Context, snapshot PlanSnapshot) error
}
