package mongo

import (
	"context"
	"time"

	"fitcoach/plan-engine/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const modelCacheCollectionName = "model_cache"

// cacheEntry is the stored shape of one cached model response. Expiry is
// enforced twice: by the TTL index (eventual cleanup) and by an explicit
// check on read, since mongo's TTL monitor only runs periodically.
type cacheEntry struct {
	Key       string    `bson:"_id"`
	Response  string    `bson:"response"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// mongoModelCacheRepository implements repository.ModelCacheRepository
type mongoModelCacheRepository struct {
	collection *mongo.Collection
}

// NewMongoModelCacheRepository creates the advisory model-response cache
// backed by MongoDB.
func NewMongoModelCacheRepository(db *mongo.Database) repository.ModelCacheRepository {
	return &mongoModelCacheRepository{
		collection: db.Collection(modelCacheCollectionName),
	}
}

// Get returns the cached response for key, if present and unexpired.
// Errors are deliberately folded into a miss.
func (r *mongoModelCacheRepository) Get(ctx context.Context, key string) (string, bool) {
	var entry cacheEntry
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if err != nil {
		return "", false
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		return "", false
	}
	return entry.Response, true
}

// Put stores a response under key with the given TTL. Best effort: failures
// are swallowed, the next caller simply re-invokes the model.
func (r *mongoModelCacheRepository) Put(ctx context.Context, key, response string, ttl time.Duration) {
	entry := cacheEntry{
		Key:       key,
		Response:  response,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	opts := options.Replace().SetUpsert(true)
	_, _ = r.collection.ReplaceOne(ctx, bson.M{"_id": key}, entry, opts)
}

// EnsureModelCacheIndexes creates the TTL index for the cache collection.
func EnsureModelCacheIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// Expire documents once expiresAt passes.
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		// Non-fatal; reads still honor expiresAt explicitly.
	}
}
