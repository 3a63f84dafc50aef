// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package model

import (
	"fmt"
	"sync"
	"time"
)

// Speaker identifies who produced a history entry
type Speaker string

const (
	SpeakerCaller     Speaker = "caller"
	SpeakerAssistant  Speaker = "assistant"
	SpeakerToolResult Speaker = "tool-result"
)

// State is the turn engine state of a call
type State string

const (
	StateGreeting  State = "greeting"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
	StateEnded     State = "ended"
)

func (s State) IsTerminal() bool {
	switch s {
	case StateEnded:
		return true
	case StateGreeting, StateListening, StateThinking, StateSpeaking:
		return false
	default:
		panic(fmt.Sprintf("unknown call state: %s", s))
	}
}

// Turn is one entry of a conversation history.
// Action is set on assistant entries that request an action, ActionID on the
// tool-result entry answering it.
type Turn struct {
	Speaker  Speaker        `json:"speaker"`
	Content  string         `json:"content"`
	Action   *ActionRequest `json:"action,omitempty"`
	ActionID string         `json:"action_id,omitempty"`
	At       time.Time      `json:"at"`
}

// CallContext carries the facts the system already holds about a call
type CallContext struct {
	CallID        string `json:"call_id"`
	CallerAddress string `json:"caller_address"`
	SubjectID     string `json:"subject_id,omitempty"`
	SubjectName   string `json:"subject_name,omitempty"`
}

// Event represents a timeline event for a call
type Event struct {
	Time   time.Time      `json:"time"`
	Type   string         `json:"type"` // "call.created", "state.changed", "action.dispatched", etc.
	Detail map[string]any `json:"detail"`
}

// NewEvent creates a new timeline event
func NewEvent(t time.Time, eventType string, detail map[string]any) Event {
	if detail == nil {
		detail = make(map[string]any)
	}
	return Event{
		Time:   t,
		Type:   eventType,
		Detail: detail,
	}
}

// Conversation is the state of one active call.
//
// Two locks guard it: the turn lock serializes whole turns for the call and is
// held across external service calls, while mu protects the fields and is only
// held for the duration of a single read or write.
type Conversation struct {
	CallID        string
	CallerAddress string
	CreatedAt     time.Time

	turnMu sync.Mutex

	mu          sync.RWMutex
	state       State
	history     []Turn
	timeline    []Event
	subjectID   string
	subjectName string
	failures    int
	ended       bool
}

// NewConversation creates a conversation in the greeting state
func NewConversation(callID, callerAddress string, now time.Time) *Conversation {
	c := &Conversation{
		CallID:        callID,
		CallerAddress: callerAddress,
		CreatedAt:     now,
		state:         StateGreeting,
	}
	c.timeline = append(c.timeline, NewEvent(now, "call.created", map[string]any{
		"call_id": callID,
		"from":    callerAddress,
	}))
	return c
}

// LockTurn blocks until no other turn is in flight for this call
func (c *Conversation) LockTurn() {
	c.turnMu.Lock()
}

func (c *Conversation) UnlockTurn() {
	c.turnMu.Unlock()
}

// Append adds an entry to the end of the history and returns the new length
func (c *Conversation) Append(t Turn) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, t)
	return len(c.history)
}

// History returns a copy of the history in conversation order
func (c *Conversation) History() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTurns(c.history)
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState records the new state and returns the previous one
func (c *Conversation) SetState(s State, now time.Time) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = s
	c.timeline = append(c.timeline, NewEvent(now, "state.changed", map[string]any{
		"from": prev,
		"to":   s,
	}))
	return prev
}

// AddEvent appends an event to the call timeline
func (c *Conversation) AddEvent(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = append(c.timeline, e)
}

// Subject returns the resolved business entity, empty when unresolved
func (c *Conversation) Subject() (id, name string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subjectID, c.subjectName
}

// ResolveSubject sets the subject unless one is already set. An empty id is
// ignored so the subject never reverts to absent.
func (c *Conversation) ResolveSubject(id, name string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subjectID != "" {
		return false
	}
	c.subjectID = id
	c.subjectName = name
	return true
}

// Context returns the call context as of now
func (c *Conversation) Context() CallContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CallContext{
		CallID:        c.CallID,
		CallerAddress: c.CallerAddress,
		SubjectID:     c.subjectID,
		SubjectName:   c.subjectName,
	}
}

// RecordFailure counts a failed turn and returns the consecutive failure count
func (c *Conversation) RecordFailure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	return c.failures
}

func (c *Conversation) ResetFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}

// MarkEnded flags the conversation as removed from the registry
func (c *Conversation) MarkEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
}

func (c *Conversation) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ended
}

// ConversationSnapshot is a JSON-serializable copy of a conversation
type ConversationSnapshot struct {
	CallID        string    `json:"call_id"`
	CallerAddress string    `json:"caller_address"`
	State         State     `json:"state"`
	SubjectID     string    `json:"subject_id,omitempty"`
	SubjectName   string    `json:"subject_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	History       []Turn    `json:"history"`
	Timeline      []Event   `json:"timeline"`
}

// Snapshot returns a deep copy of the conversation
func (c *Conversation) Snapshot() ConversationSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConversationSnapshot{
		CallID:        c.CallID,
		CallerAddress: c.CallerAddress,
		State:         c.state,
		SubjectID:     c.subjectID,
		SubjectName:   c.subjectName,
		CreatedAt:     c.CreatedAt,
		History:       cloneTurns(c.history),
		Timeline:      cloneEvents(c.timeline),
	}
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if t.Action != nil {
			req := *t.Action
			req.Arguments = cloneMap(req.Arguments)
			t.Action = &req
		}
		out[i] = t
	}
	return out
}

func cloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	for i, ev := range events {
		ev.Detail = cloneMap(ev.Detail)
		out[i] = ev
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
