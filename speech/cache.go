// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/sprucehealth/voiceagent/engine"
	"github.com/sprucehealth/voiceagent/metrics"
	"github.com/sprucehealth/voiceagent/model"
)

// Cache memoizes synthesized audio by text and voice and keeps it available
// for the provider to download. Concurrent requests for the same utterance
// share one synthesis.
type Cache struct {
	next  engine.Synthesizer
	cache *lru.Cache
	group singleflight.Group

	pinnedMu sync.RWMutex
	pinned   map[string]*model.AudioArtifact
}

var _ engine.AudioPinner = (*Cache)(nil)

// NewCache wraps a synthesizer with an LRU of maxSize artifacts
func NewCache(next engine.Synthesizer, maxSize int) (*Cache, error) {
	cache, err := lru.New(maxSize)
	if err != nil {
		return nil, fmt.Errorf("create synthesis cache: %w", err)
	}
	return &Cache{next: next, cache: cache, pinned: make(map[string]*model.AudioArtifact)}, nil
}

func (c *Cache) Synthesize(ctx context.Context, text, voice string) (*model.AudioArtifact, error) {
	id := ArtifactID(text, voice)
	if artifact, ok := c.Lookup(id); ok {
		metrics.RecordSynthesisCacheLookup(true)
		return artifact, nil
	}
	metrics.RecordSynthesisCacheLookup(false)

	v, err, _ := c.group.Do(id, func() (any, error) {
		artifact, err := c.next.Synthesize(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		// Stored under the cache key so Lookup finds what Synthesize returned
		stored := *artifact
		stored.ID = id
		c.cache.Add(id, &stored)
		return &stored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.AudioArtifact), nil
}

// Pin keeps an artifact outside the LRU so it is never evicted
func (c *Cache) Pin(artifact *model.AudioArtifact) {
	if artifact == nil || artifact.ID == "" {
		return
	}
	c.pinnedMu.Lock()
	c.pinned[artifact.ID] = artifact
	c.pinnedMu.Unlock()
}

// Lookup returns a previously synthesized or pinned artifact by ID
func (c *Cache) Lookup(id string) (*model.AudioArtifact, bool) {
	c.pinnedMu.RLock()
	artifact, ok := c.pinned[id]
	c.pinnedMu.RUnlock()
	if ok {
		return artifact, true
	}
	v, ok := c.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*model.AudioArtifact), true
}

func (c *Cache) Len() int {
	return c.cache.Len()
}
