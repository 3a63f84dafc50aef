// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package httpstub provides recording test doubles for the services the voice
// agent talks to over HTTP.
package httpstub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/sprucehealth/voiceagent/model"
)

// ErrScriptExhausted is returned by ScriptedResponder when no response is queued
var ErrScriptExhausted = errors.New("httpstub: no scripted response left")

// RecognizeCall records a recognition request
type RecognizeCall struct {
	Audio  model.AudioRef
	Locale string
	Time   time.Time
}

// FakeRecognizer is a test double for speech recognition.
// Queued transcripts are returned in order, then ResponseFunc is used.
type FakeRecognizer struct {
	mu    sync.Mutex
	calls []RecognizeCall
	queue []string
	// ResponseFunc allows tests to control responses
	ResponseFunc func(ctx context.Context, audio model.AudioRef, locale string) (string, error)
}

func NewFakeRecognizer(transcripts ...string) *FakeRecognizer {
	return &FakeRecognizer{queue: transcripts}
}

// Queue appends transcripts to return
func (f *FakeRecognizer) Queue(transcripts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, transcripts...)
}

func (f *FakeRecognizer) Recognize(ctx context.Context, audio model.AudioRef, locale string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, RecognizeCall{Audio: audio, Locale: locale, Time: time.Now()})
	if len(f.queue) > 0 {
		text := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return text, nil
	}
	fn := f.ResponseFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, locale)
	}
	return "", nil
}

func (f *FakeRecognizer) Calls() []RecognizeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecognizeCall(nil), f.calls...)
}

// RespondCall records a response engine request
type RespondCall struct {
	History []model.Turn
	Actions []model.ActionSpec
	Context model.CallContext
}

type scripted struct {
	resp *model.Response
	err  error
}

// ScriptedResponder is a test double for the response engine. It replays a
// script of responses and errors, one per request.
type ScriptedResponder struct {
	mu     sync.Mutex
	calls  []RespondCall
	script []scripted
	// ResponseFunc is used once the script runs out
	ResponseFunc func(ctx context.Context, history []model.Turn, cc model.CallContext) (*model.Response, error)
}

func NewScriptedResponder() *ScriptedResponder {
	return &ScriptedResponder{}
}

// Say queues an utterance
func (s *ScriptedResponder) Say(utterance string) *ScriptedResponder {
	return s.push(scripted{resp: &model.Response{Utterance: utterance}})
}

// Act queues a request for one or more actions
func (s *ScriptedResponder) Act(reqs ...model.ActionRequest) *ScriptedResponder {
	return s.push(scripted{resp: &model.Response{Actions: reqs}})
}

// Fail queues an error
func (s *ScriptedResponder) Fail(err error) *ScriptedResponder {
	return s.push(scripted{err: err})
}

func (s *ScriptedResponder) push(step scripted) *ScriptedResponder {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, step)
	return s
}

func (s *ScriptedResponder) Respond(ctx context.Context, history []model.Turn, actions []model.ActionSpec, cc model.CallContext) (*model.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, RespondCall{
		History: append([]model.Turn(nil), history...),
		Actions: actions,
		Context: cc,
	})
	if len(s.script) > 0 {
		step := s.script[0]
		s.script = s.script[1:]
		s.mu.Unlock()
		return step.resp, step.err
	}
	fn := s.ResponseFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, history, cc)
	}
	return nil, ErrScriptExhausted
}

func (s *ScriptedResponder) Calls() []RespondCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RespondCall(nil), s.calls...)
}

// InvokeCall records an action backend request
type InvokeCall struct {
	Name    string
	Args    map[string]any
	Context model.CallContext
}

// FakeActionBackend is a test double for the action backend. Results are
// looked up by action name; unknown actions fail.
type FakeActionBackend struct {
	mu      sync.Mutex
	calls   []InvokeCall
	results map[string]model.ActionResult
	// ResponseFunc overrides the result table when set
	ResponseFunc func(ctx context.Context, name string, args map[string]any, cc model.CallContext) model.ActionResult
}

func NewFakeActionBackend() *FakeActionBackend {
	return &FakeActionBackend{results: make(map[string]model.ActionResult)}
}

// On sets the result returned for an action
func (f *FakeActionBackend) On(name string, result model.ActionResult) *FakeActionBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = result
	return f
}

func (f *FakeActionBackend) Invoke(ctx context.Context, name string, args map[string]any, cc model.CallContext) model.ActionResult {
	f.mu.Lock()
	f.calls = append(f.calls, InvokeCall{Name: name, Args: args, Context: cc})
	fn := f.ResponseFunc
	result, ok := f.results[name]
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, name, args, cc)
	}
	if !ok {
		return model.ActionResult{Success: false, Error: "unknown action: " + name}
	}
	return result
}

func (f *FakeActionBackend) Calls() []InvokeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InvokeCall(nil), f.calls...)
}

// GetCallsTo returns all invocations of a specific action
func (f *FakeActionBackend) GetCallsTo(name string) []InvokeCall {
	var result []InvokeCall
	for _, call := range f.Calls() {
		if call.Name == name {
			result = append(result, call)
		}
	}
	return result
}

// SynthesizeCall records a synthesis request
type SynthesizeCall struct {
	Text  string
	Voice string
}

// FakeSynthesizer is a test double for speech synthesis. By default it
// returns an artifact whose ID is derived from text and voice.
type FakeSynthesizer struct {
	mu    sync.Mutex
	calls []SynthesizeCall
	// ResponseFunc allows tests to control responses
	ResponseFunc func(ctx context.Context, text, voice string) (*model.AudioArtifact, error)
}

func NewFakeSynthesizer() *FakeSynthesizer {
	return &FakeSynthesizer{}
}

func (f *FakeSynthesizer) Synthesize(ctx context.Context, text, voice string) (*model.AudioArtifact, error) {
	f.mu.Lock()
	f.calls = append(f.calls, SynthesizeCall{Text: text, Voice: voice})
	fn := f.ResponseFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	return &model.AudioArtifact{
		ID:          ArtifactID(text, voice),
		ContentType: "audio/mpeg",
		Data:        []byte(text),
	}, nil
}

func (f *FakeSynthesizer) Calls() []SynthesizeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SynthesizeCall(nil), f.calls...)
}

// Reset clears all recorded calls
func (f *FakeSynthesizer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// ArtifactID is the ID FakeSynthesizer gives the audio for text and voice
func ArtifactID(text, voice string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	return hex.EncodeToString(sum[:8])
}

// FakeTerminator records provider hangups
type FakeTerminator struct {
	mu      sync.Mutex
	callIDs []string
	Err     error
}

func (f *FakeTerminator) Hangup(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callIDs = append(f.callIDs, callID)
	return f.Err
}

func (f *FakeTerminator) HungUp() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.callIDs...)
}
