// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprucehealth/voiceagent/metrics"
	"github.com/sprucehealth/voiceagent/model"
)

// SubjectExtractor finds the business entity a successful action result refers to
type SubjectExtractor func(data map[string]any) (id, name string)

// MediatorConfig configures a Mediator
type MediatorConfig struct {
	Catalog          []model.ActionSpec
	ActionTimeout    time.Duration
	ResponseTimeout  time.Duration
	MaxChain         int
	Clock            Clock
	Log              zerolog.Logger
	SubjectExtractor SubjectExtractor
}

// Mediator runs the action sub-protocol between the response engine and the
// action backend.
type Mediator struct {
	backend   ActionBackend
	responder Responder
	catalog   []model.ActionSpec
	specs     map[string]model.ActionSpec
	cfg       MediatorConfig
	log       zerolog.Logger
}

// NewMediator creates a mediator for a backend and response engine
func NewMediator(backend ActionBackend, responder Responder, cfg MediatorConfig) *Mediator {
	if cfg.Clock == nil {
		cfg.Clock = NewAutoClock()
	}
	if cfg.SubjectExtractor == nil {
		cfg.SubjectExtractor = DefaultSubjectExtractor
	}
	if cfg.MaxChain <= 0 {
		cfg.MaxChain = DefaultLimits().MaxActionChain
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultTimeouts().Action
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultTimeouts().Response
	}
	specs := make(map[string]model.ActionSpec, len(cfg.Catalog))
	for _, s := range cfg.Catalog {
		specs[s.Name] = s
	}
	return &Mediator{
		backend:   backend,
		responder: responder,
		catalog:   cfg.Catalog,
		specs:     specs,
		cfg:       cfg,
		log:       cfg.Log.With().Str("component", "mediator").Logger(),
	}
}

// Respond asks the response engine for the next step given the full history
func (m *Mediator) Respond(ctx context.Context, conv *model.Conversation) (*model.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ResponseTimeout)
	defer cancel()

	start := time.Now()
	resp, err := m.responder.Respond(ctx, conv.History(), m.catalog, conv.Context())
	if err == nil && resp == nil {
		err = ErrEmptyResponse
	}
	metrics.ObserveExternalCall("response", err, time.Since(start))
	if err != nil {
		return nil, newTurnError(KindResponse, conv.CallID, err)
	}
	return resp, nil
}

// Resolve dispatches the actions a response asks for and re-queries the
// response engine until it answers with an utterance. At most MaxChain rounds
// of actions are run per turn.
func (m *Mediator) Resolve(ctx context.Context, conv *model.Conversation, resp *model.Response) (string, error) {
	for round := 1; resp.WantsAction(); round++ {
		if round > m.cfg.MaxChain {
			m.log.Warn().Str("call_id", conv.CallID).Int("rounds", round-1).Msg("action chain limit reached")
			return "", newTurnError(KindResponse, conv.CallID, ErrActionChainExceeded)
		}
		for _, req := range resp.Actions {
			m.Dispatch(ctx, conv, req)
		}

		var err error
		resp, err = m.Respond(ctx, conv)
		if err != nil {
			return "", err
		}
	}
	return resp.Utterance, nil
}

// Dispatch performs one action and records the request and its result as a
// pair of history entries. Failures come back as unsuccessful results.
func (m *Mediator) Dispatch(ctx context.Context, conv *model.Conversation, req model.ActionRequest) model.ActionResult {
	if req.ID == "" {
		req.ID = "act_" + uuid.NewString()
	}
	cc := conv.Context()
	req.Arguments = InjectContext(m.specs[req.Name], req.Arguments, cc)

	conv.Append(model.Turn{
		Speaker: model.SpeakerAssistant,
		Content: req.Name,
		Action:  &req,
		At:      m.cfg.Clock.Now(),
	})

	start := time.Now()
	result := m.invoke(ctx, req, cc)
	metrics.RecordActionDispatch(req.Name, result.Success)

	if result.Success {
		if id, name := m.cfg.SubjectExtractor(result.Data); id != "" {
			if conv.ResolveSubject(id, name) {
				m.log.Info().Str("call_id", conv.CallID).Str("subject_id", id).Msg("subject resolved")
			}
		}
	}

	conv.Append(model.Turn{
		Speaker:  model.SpeakerToolResult,
		Content:  result.Content(),
		ActionID: req.ID,
		At:       m.cfg.Clock.Now(),
	})
	conv.AddEvent(model.NewEvent(m.cfg.Clock.Now(), "action.dispatched", map[string]any{
		"action":   req.Name,
		"id":       req.ID,
		"success":  result.Success,
		"error":    result.Error,
		"duration": time.Since(start).String(),
	}))

	logEvent := m.log.Info()
	if !result.Success {
		logEvent = m.log.Warn().Str("error", result.Error)
	}
	logEvent.
		Str("call_id", conv.CallID).
		Str("action", req.Name).
		Bool("success", result.Success).
		Dur("elapsed", time.Since(start)).
		Msg("action dispatched")
	return result
}

// invoke calls the backend under the action deadline. A backend that does not
// return in time yields a failed result; its goroutine is left to finish on
// its own once the context is cancelled.
func (m *Mediator) invoke(ctx context.Context, req model.ActionRequest, cc model.CallContext) model.ActionResult {
	if m.backend == nil {
		return model.FailedResult(newTurnError(KindActionDispatch, cc.CallID, errors.New("no action backend configured")))
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ActionTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan model.ActionResult, 1)
	go func() {
		done <- m.backend.Invoke(ctx, req.Name, req.Arguments, cc)
	}()

	select {
	case result := <-done:
		var err error
		if !result.Success {
			err = errors.New(result.Error)
		}
		metrics.ObserveExternalCall("action", err, time.Since(start))
		return result
	case <-ctx.Done():
		metrics.ObserveExternalCall("action", ctx.Err(), time.Since(start))
		err := newTurnError(KindActionDispatch, cc.CallID, fmt.Errorf("action %s: %w", req.Name, ctx.Err()))
		return model.FailedResult(err)
	}
}

// InjectContext fills arguments the response engine left out from the call
// context, following the action's ContextArgs. Arguments that were provided
// are kept as they are.
func InjectContext(spec model.ActionSpec, args map[string]any, cc model.CallContext) map[string]any {
	out := make(map[string]any, len(args)+len(spec.ContextArgs))
	for k, v := range args {
		out[k] = v
	}
	for arg, field := range spec.ContextArgs {
		if !isMissing(out[arg]) {
			continue
		}
		if v := cc.Value(field); v != "" {
			out[arg] = v
		}
	}
	return out
}

func isMissing(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

// DefaultSubjectExtractor reads the customer a result refers to from
// customer.{customer_id,name}, customer_id/name or subject_id/subject_name.
func DefaultSubjectExtractor(data map[string]any) (id, name string) {
	if data == nil {
		return "", ""
	}
	if customer, ok := data["customer"].(map[string]any); ok {
		if id := stringValue(customer["customer_id"]); id != "" {
			return id, stringValue(customer["name"])
		}
	}
	if id := stringValue(data["customer_id"]); id != "" {
		return id, stringValue(data["name"])
	}
	if id := stringValue(data["subject_id"]); id != "" {
		return id, stringValue(data["subject_name"])
	}
	return "", ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	default:
		return ""
	}
}
