// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/sprucehealth/voiceagent/model"
)

// Registry maps call identifiers to their conversations.
// The map lock is only held for map operations, never across a turn.
type Registry struct {
	mu    sync.RWMutex
	clock Clock
	calls map[string]*model.Conversation
	ended map[string]time.Time // removed call -> removal time
}

// NewRegistry creates an empty registry
func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = NewAutoClock()
	}
	return &Registry{
		clock: clock,
		calls: make(map[string]*model.Conversation),
		ended: make(map[string]time.Time),
	}
}

// Get returns the conversation for a call
func (r *Registry) Get(callID string) (*model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.calls[callID]
	return conv, ok
}

// CreateOutcome tells how Create resolved a call identifier
type CreateOutcome int

const (
	// CallCreated means a new conversation was registered
	CallCreated CreateOutcome = iota
	// CallExists means the call was already registered and is returned untouched
	CallExists
	// CallEnded means the call already ended; no conversation is returned
	CallEnded
)

// Create registers a new conversation. The tombstone check and the insert
// happen under one lock, so a call that ends concurrently is never revived.
func (r *Registry) Create(callID, callerAddress string) (*model.Conversation, CreateOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ended[callID]; ok {
		return nil, CallEnded
	}
	if existing, ok := r.calls[callID]; ok {
		return existing, CallExists
	}
	conv := model.NewConversation(callID, callerAddress, r.clock.Now())
	r.calls[callID] = conv
	return conv, CallCreated
}

// Remove deletes a call and marks its conversation ended. Removing an unknown
// call is not an error; the return value reports whether anything was removed.
func (r *Registry) Remove(callID string) bool {
	r.mu.Lock()
	conv, ok := r.calls[callID]
	if ok {
		delete(r.calls, callID)
		r.ended[callID] = r.clock.Now()
	}
	r.mu.Unlock()

	if ok {
		conv.MarkEnded()
	}
	return ok
}

// AppendTurn adds an entry to a call's history
func (r *Registry) AppendTurn(callID string, t model.Turn) error {
	conv, ok := r.Get(callID)
	if !ok {
		return ErrUnknownCall
	}
	if t.At.IsZero() {
		t.At = r.clock.Now()
	}
	conv.Append(t)
	return nil
}

// List returns the registered conversations, oldest first
func (r *Registry) List() []*model.Conversation {
	r.mu.RLock()
	result := make([]*model.Conversation, 0, len(r.calls))
	for _, conv := range r.calls {
		result = append(result, conv)
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CallID < result[j].CallID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// WasEnded reports whether a call was removed and its tombstone not yet pruned
func (r *Registry) WasEnded(callID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ended[callID]
	return ok
}

// PruneEnded forgets calls removed before cutoff and returns how many were dropped
func (r *Registry) PruneEnded(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, at := range r.ended {
		if at.Before(cutoff) {
			delete(r.ended, id)
			n++
		}
	}
	return n
}
