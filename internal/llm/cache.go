package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"fitcoach/plan-engine/internal/repository"
)

// TTLConfig maps endpoint types to cache lifetimes. Conversation-shaped
// endpoints stay fresh for about an hour; stable artifacts keep for a day.
type TTLConfig struct {
	Chat     time.Duration
	Artifact time.Duration
}

// DefaultTTLConfig returns the standard per-endpoint lifetimes.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Chat:     1 * time.Hour,
		Artifact: 24 * time.Hour,
	}
}

// CachedInvoker wraps an Invoker with an advisory get/put response cache.
// Correctness must hold identically whether a response is served from cache
// or freshly generated, so the cache is consulted and filled best effort and
// any cache failure silently falls through to the wrapped invoker.
type CachedInvoker struct {
	next Invoker
	repo repository.ModelCacheRepository
	ttl  TTLConfig
}

// NewCachedInvoker wraps next with the given cache repository.
func NewCachedInvoker(next Invoker, repo repository.ModelCacheRepository, ttl TTLConfig) *CachedInvoker {
	return &CachedInvoker{next: next, repo: repo, ttl: ttl}
}

// Invoke serves from cache when possible, otherwise delegates and stores the
// fresh response under the request's key.
func (c *CachedInvoker) Invoke(ctx context.Context, req Request) (string, error) {
	key := CacheKey(req)

	if resp, ok := c.repo.Get(ctx, key); ok {
		return resp, nil
	}

	resp, err := c.next.Invoke(ctx, req)
	if err != nil {
		return "", err
	}

	c.repo.Put(ctx, key, resp, c.ttlFor(req.Endpoint))
	return resp, nil
}

func (c *CachedInvoker) ttlFor(endpoint EndpointType) time.Duration {
	if endpoint == EndpointSynthesize {
		// Synthesis output is reviewed and regenerated per modification;
		// only redelivery of the identical turn should hit this.
		return c.ttl.Chat
	}
	if endpoint == EndpointExtract || endpoint == EndpointClassify {
		return c.ttl.Chat
	}
	return c.ttl.Artifact
}

// CacheKey derives the cache key from user, normalized prompt content and
// endpoint type.
func CacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.UserID))
	h.Write([]byte{0})
	h.Write([]byte(string(req.Endpoint)))
	h.Write([]byte{0})
	for _, m := range req.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(normalizePrompt(m.Content)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePrompt collapses whitespace so cosmetic prompt differences do not
// fragment the cache.
func normalizePrompt(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
