package mongo

import (
	"context"
	"errors"
	"time"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const conversationCollectionName = "conversations"

// mongoConversationRepository implements repository.ConversationRepository
type mongoConversationRepository struct {
	collection *mongo.Collection
}

// NewMongoConversationRepository creates a conversation repository backed by MongoDB.
func NewMongoConversationRepository(db *mongo.Database) repository.ConversationRepository {
	return &mongoConversationRepository{
		collection: db.Collection(conversationCollectionName),
	}
}

// Create inserts a new conversation and returns its generated id.
func (r *mongoConversationRepository) Create(ctx context.Context, conv *domain.Conversation) (primitive.ObjectID, error) {
	if conv.UserID == "" {
		return primitive.NilObjectID, errors.New("user ID is required")
	}

	conv.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.Version = 1

	result, err := r.collection.InsertOne(ctx, conv)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByID retrieves a conversation by its ID.
func (r *mongoConversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Conversation, error) {
	var conv domain.Conversation
	filter := bson.M{"_id": id}

	err := r.collection.FindOne(ctx, filter).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// Save replaces the stored document if and only if it still carries
// expectedVersion. The write bumps the version, so a concurrent or
// redelivered write of the same turn matches nothing and reports
// ErrVersionConflict.
func (r *mongoConversationRepository) Save(ctx context.Context, conv *domain.Conversation, expectedVersion int64) error {
	if conv.ID == primitive.NilObjectID {
		return errors.New("conversation ID is required for save")
	}

	conv.Version = expectedVersion + 1
	conv.UpdatedAt = time.Now().UTC()

	filter := bson.M{"_id": conv.ID, "version": expectedVersion}
	result, err := r.collection.ReplaceOne(ctx, filter, conv)
	if err != nil {
		conv.Version = expectedVersion // undo local bump on failure
		return err
	}

	if result.MatchedCount == 0 {
		conv.Version = expectedVersion
		// Either the conversation vanished or someone committed first.
		exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": conv.ID})
		if countErr == nil && exists == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}
	return nil
}

// EnsureConversationIndexes creates the indexes for the conversations collection.
func EnsureConversationIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Listing a user's conversations, newest first.
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "state", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// Index creation failures are non-fatal at startup.
		// log.Printf("WARN: Failed to create indexes for %s: %v", collection.Name(), err)
	}
}
