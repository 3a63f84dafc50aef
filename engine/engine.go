// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sprucehealth/voiceagent/metrics"
	"github.com/sprucehealth/voiceagent/model"
)

const tracerName = "github.com/sprucehealth/voiceagent/engine"

// Profile holds the fixed utterances and speech settings of the assistant
type Profile struct {
	Greeting      string
	ClosingPhrase string
	Apology       string // asked when a turn fails and the caller should repeat
	Goodbye       string // said before hanging up after repeated failures
	Transfer      string // optional number that takes over instead of hanging up after repeated failures
	Handover      string // said before connecting to Transfer
	Voice         string
	Locale        string
	Capture       model.Capture
}

// DefaultProfile returns a minimal English profile
func DefaultProfile() Profile {
	return Profile{
		Greeting:      "Hello, how can I help you?",
		ClosingPhrase: "Goodbye",
		Apology:       "Sorry, I didn't catch that. Could you say it again?",
		Goodbye:       "Sorry, I'm having trouble right now. Please call again later. Goodbye.",
		Voice:         "alloy",
		Locale:        "en",
		Capture:       model.Capture{TimeoutSeconds: 30, SilenceSeconds: 3},
	}
}

// Timeouts bound each external service call
type Timeouts struct {
	Recognition time.Duration
	Response    time.Duration
	Synthesis   time.Duration
	Action      time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Recognition: 15 * time.Second,
		Response:    20 * time.Second,
		Synthesis:   15 * time.Second,
		Action:      30 * time.Second,
	}
}

// Limits bound retries within a call
type Limits struct {
	MaxTurnFailures int // consecutive failed or silent turns before hanging up
	MaxActionChain  int // action rounds per turn before hanging up
}

func DefaultLimits() Limits {
	return Limits{MaxTurnFailures: 3, MaxActionChain: 3}
}

// Engine drives the conversation of every active call
type Engine struct {
	registry    *Registry
	clock       Clock
	recognizer  Recognizer
	synthesizer Synthesizer
	mediator    *Mediator

	profile  Profile
	timeouts Timeouts
	limits   Limits
	catalog  []model.ActionSpec
	log      zerolog.Logger
	tracer   trace.Tracer

	// Fallback utterances synthesized ahead of time, keyed by text
	fallbackMu sync.RWMutex
	fallback   map[string]string
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithClock sets a specific clock implementation
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithManualClock configures the engine to use a manual clock
func WithManualClock() EngineOption {
	return func(e *Engine) {
		e.clock = NewManualClock(time.Time{})
	}
}

// WithLogger sets the engine logger
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log.With().Str("component", "turn-engine").Logger()
	}
}

// WithProfile sets the assistant profile
func WithProfile(p Profile) EngineOption {
	return func(e *Engine) {
		e.profile = p
	}
}

// WithTimeouts sets per-service deadlines
func WithTimeouts(t Timeouts) EngineOption {
	return func(e *Engine) {
		e.timeouts = t
	}
}

// WithLimits sets the retry bounds
func WithLimits(l Limits) EngineOption {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithActionCatalog sets the actions offered to the response engine
func WithActionCatalog(specs []model.ActionSpec) EngineOption {
	return func(e *Engine) {
		e.catalog = specs
	}
}

// NewEngine creates a new engine instance
func NewEngine(svc Services, opts ...EngineOption) *Engine {
	e := &Engine{
		clock:       NewAutoClock(),
		recognizer:  svc.Recognizer,
		synthesizer: svc.Synthesizer,
		profile:     DefaultProfile(),
		timeouts:    DefaultTimeouts(),
		limits:      DefaultLimits(),
		log:         zerolog.Nop(),
		tracer:      otel.Tracer(tracerName),
		fallback:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.registry = NewRegistry(e.clock)
	e.mediator = NewMediator(svc.Actions, svc.Responder, MediatorConfig{
		Catalog:         e.catalog,
		ActionTimeout:   e.timeouts.Action,
		ResponseTimeout: e.timeouts.Response,
		MaxChain:        e.limits.MaxActionChain,
		Clock:           e.clock,
		Log:             e.log,
	})

	return e
}

// Registry returns the call registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Clock returns the current clock
func (e *Engine) Clock() Clock {
	return e.clock
}

// Profile returns the assistant profile
func (e *Engine) Profile() Profile {
	return e.profile
}

// Warmup synthesizes the apology and goodbye utterances so they are available
// when synthesis itself is what fails. The audio is pinned when the
// synthesizer supports it, so playback survives cache turnover.
func (e *Engine) Warmup(ctx context.Context) error {
	for _, text := range []string{e.profile.Apology, e.profile.Goodbye, e.profile.Handover} {
		if text == "" {
			continue
		}
		artifact, err := e.synthesize(ctx, "", text)
		if err != nil {
			return err
		}
		if p, ok := e.synthesizer.(AudioPinner); ok {
			p.Pin(artifact)
		}
		e.fallbackMu.Lock()
		e.fallback[text] = artifact.ID
		e.fallbackMu.Unlock()
	}
	return nil
}

// OnCallStart registers the call and returns the greeting. A repeated start
// event for a known call leaves the history alone and resumes listening; one
// for a call that already ended is treated as unknown.
func (e *Engine) OnCallStart(ctx context.Context, callID, callerAddress string) model.Instruction {
	conv, outcome := e.registry.Create(callID, callerAddress)
	switch outcome {
	case CallEnded:
		return e.unknownCall(callID, "start")
	case CallCreated:
		metrics.RecordCallStarted()
		e.log.Info().Str("call_id", callID).Str("from", callerAddress).Msg("call started")
	}

	conv.LockTurn()
	defer conv.UnlockTurn()

	if conv.Ended() {
		return e.unknownCall(callID, "start")
	}
	if conv.State() != model.StateGreeting {
		e.log.Warn().Str("call_id", callID).Str("state", string(conv.State())).Msg("duplicate call start")
		return model.CaptureOnly(e.profile.Capture)
	}

	ctx, span := e.tracer.Start(ctx, "turn.greeting")
	defer span.End()
	return e.greet(ctx, conv)
}

// OnAudioCaptured runs one turn for captured caller audio. An empty audio
// reference means the capture timed out without speech.
func (e *Engine) OnAudioCaptured(ctx context.Context, callID string, audio model.AudioRef) model.Instruction {
	conv, err := e.acquire(callID)
	if err != nil {
		return e.unknownCall(callID, "audio")
	}
	defer conv.UnlockTurn()

	ctx, span := e.tracer.Start(ctx, "turn")
	defer span.End()

	switch state := conv.State(); state {
	case model.StateListening:
		return e.listen(ctx, conv, audio)
	case model.StateGreeting:
		// The greeting never completed; start over with it
		return e.greet(ctx, conv)
	default:
		e.log.Error().Str("call_id", callID).Str("state", string(state)).Msg("audio received outside of listening")
		return model.CaptureOnly(e.profile.Capture)
	}
}

// OnCallEnded removes the call once any in-flight turn has finished
func (e *Engine) OnCallEnded(ctx context.Context, callID string) {
	conv, err := e.acquire(callID)
	if err != nil {
		return
	}
	defer conv.UnlockTurn()
	e.end(conv, "caller_hangup")
}

// Snapshot returns copies of every active conversation
func (e *Engine) Snapshot() []model.ConversationSnapshot {
	convs := e.registry.List()
	result := make([]model.ConversationSnapshot, 0, len(convs))
	for _, conv := range convs {
		result = append(result, conv.Snapshot())
	}
	return result
}

// acquire looks up a call and takes its turn lock. The caller must release it.
func (e *Engine) acquire(callID string) (*model.Conversation, error) {
	conv, ok := e.registry.Get(callID)
	if !ok {
		return nil, ErrUnknownCall
	}
	conv.LockTurn()
	if conv.Ended() {
		conv.UnlockTurn()
		return nil, ErrUnknownCall
	}
	return conv, nil
}

// end moves the call to ENDED and removes it from the registry.
// Must be called with the turn lock held.
func (e *Engine) end(conv *model.Conversation, reason string) {
	if conv.State() != model.StateEnded {
		if err := e.transition(conv, model.StateEnded); err != nil {
			conv.SetState(model.StateEnded, e.clock.Now())
		}
	}
	if e.registry.Remove(conv.CallID) {
		metrics.RecordCallEnded(reason)
		e.log.Info().
			Str("call_id", conv.CallID).
			Str("reason", reason).
			Int("turns", conv.Len()).
			Msg("call ended")
	}
}

func (e *Engine) unknownCall(callID, event string) model.Instruction {
	metrics.RecordTurnOutcome("unknown_call")
	e.log.Warn().Str("call_id", callID).Str("event", event).Msg("event for unknown call")
	return model.HangupOnly()
}
