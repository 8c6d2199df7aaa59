package repository

import (
	"context"
	"time"

	"fitcoach/plan-engine/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the repository layer.
var (
	ErrNotFound        = RepositoryError("not found")
	ErrVersionConflict = RepositoryError("version conflict")
)

// RepositoryError helps distinguish repository errors.
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ConversationRepository persists conversation state keyed by conversation id.
//
// Save enforces optimistic concurrency: it only writes when the stored
// document still carries expectedVersion, and increments the version on
// success. A redelivered turn that was already committed therefore fails
// with ErrVersionConflict instead of double-applying.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Conversation, error)
	Save(ctx context.Context, conv *domain.Conversation, expectedVersion int64) error
}

// ModelCacheRepository is the advisory store behind the model-response cache.
// Both operations are best effort: a miss and an error look the same to the
// caller, and Put failures must never fail an invocation.
type ModelCacheRepository interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, response string, ttl time.Duration)
}
