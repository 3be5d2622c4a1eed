package engine

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/speech"
)

type featureKey struct {
	sentence string
	language string
}

type featureEntry struct {
	features *speech.Features
	slots    []speech.Slot
}

// CachedFrontend memoizes per-sentence features. Repeated sentences
// (greetings, fillers) skip the linguistic frontend entirely. Cached values
// are shared and must not be modified by callers.
type CachedFrontend struct {
	speech.Frontend
	cache *lru.Cache[featureKey, featureEntry]
}

// NewCachedFrontend wraps frontend with an LRU of size entries. A size of
// zero or less disables caching and returns frontend unchanged.
func NewCachedFrontend(frontend speech.Frontend, size int) (speech.Frontend, error) {
	if size <= 0 {
		return frontend, nil
	}
	cache, err := lru.New[featureKey, featureEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create feature cache: %w", err)
	}
	return &CachedFrontend{Frontend: frontend, cache: cache}, nil
}

// Features implements speech.Frontend.
func (c *CachedFrontend) Features(ctx context.Context, sentence, language string) (*speech.Features, []speech.Slot, error) {
	key := featureKey{sentence: sentence, language: language}
	if e, ok := c.cache.Get(key); ok {
		observability.RecordFeatureCache(true)
		return e.features, e.slots, nil
	}
	observability.RecordFeatureCache(false)

	features, slots, err := c.Frontend.Features(ctx, sentence, language)
	if err != nil {
		return nil, nil, err
	}
	c.cache.Add(key, featureEntry{features: features, slots: slots})
	return features, slots, nil
}

// Len returns the number of cached sentences.
func (c *CachedFrontend) Len() int {
	return c.cache.Len()
}
