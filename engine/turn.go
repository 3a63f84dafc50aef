// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sprucehealth/voiceagent/metrics"
	"github.com/sprucehealth/voiceagent/model"
)

// Each function below runs one state of the turn engine with the call's turn
// lock held, and returns the instruction for the telephony provider.

// greet runs GREETING: say the opening line and start listening
func (e *Engine) greet(ctx context.Context, conv *model.Conversation) model.Instruction {
	text := e.profile.Greeting
	conv.Append(model.Turn{Speaker: model.SpeakerAssistant, Content: text, At: e.clock.Now()})

	utterance := model.Utterance{Text: text}
	if artifact, err := e.synthesize(ctx, conv.CallID, text); err != nil {
		e.log.Warn().Err(err).Str("call_id", conv.CallID).Msg("greeting synthesis failed, using provider speech")
	} else {
		utterance.AudioID = artifact.ID
	}

	if err := e.transition(conv, model.StateListening); err != nil {
		e.end(conv, "invalid_state")
		return model.HangupOnly()
	}
	metrics.RecordTurnOutcome("greeting")
	return model.SpeakThenCapture(utterance, e.profile.Capture)
}

// listen runs LISTENING: retry the capture on silence, otherwise start thinking
func (e *Engine) listen(ctx context.Context, conv *model.Conversation, audio model.AudioRef) model.Instruction {
	if audio.IsEmpty() {
		failures := conv.RecordFailure()
		e.log.Debug().Str("call_id", conv.CallID).Int("failures", failures).Msg("no audio captured")
		if failures >= e.limits.MaxTurnFailures {
			metrics.RecordTurnOutcome("silence_hangup")
			return e.giveUp(conv, "silence")
		}
		metrics.RecordTurnOutcome("silence")
		return model.CaptureOnly(e.profile.Capture)
	}

	if err := e.transition(conv, model.StateThinking); err != nil {
		e.end(conv, "invalid_state")
		return model.HangupOnly()
	}
	return e.think(ctx, conv, audio)
}

// think runs THINKING: recognize, record the caller turn and obtain a reply,
// going through the mediator while the response engine asks for actions.
func (e *Engine) think(ctx context.Context, conv *model.Conversation, audio model.AudioRef) model.Instruction {
	text, err := e.recognize(ctx, conv.CallID, audio)
	if err != nil {
		return e.recover(ctx, conv, err)
	}
	conv.Append(model.Turn{Speaker: model.SpeakerCaller, Content: text, At: e.clock.Now()})
	e.log.Info().Str("call_id", conv.CallID).Str("text", text).Msg("caller said")

	resp, err := e.mediator.Respond(ctx, conv)
	if err != nil {
		return e.recover(ctx, conv, err)
	}

	utterance := resp.Utterance
	if resp.WantsAction() {
		utterance, err = e.mediator.Resolve(ctx, conv, resp)
		if err != nil {
			return e.recover(ctx, conv, err)
		}
	}
	if strings.TrimSpace(utterance) == "" {
		return e.recover(ctx, conv, newTurnError(KindResponse, conv.CallID, ErrEmptyResponse))
	}

	if err := e.transition(conv, model.StateSpeaking); err != nil {
		e.end(conv, "invalid_state")
		return model.HangupOnly()
	}
	return e.speak(ctx, conv, utterance)
}

// speak runs SPEAKING: record the reply, synthesize it and decide whether the
// call continues.
func (e *Engine) speak(ctx context.Context, conv *model.Conversation, text string) model.Instruction {
	conv.Append(model.Turn{Speaker: model.SpeakerAssistant, Content: text, At: e.clock.Now()})
	e.log.Info().Str("call_id", conv.CallID).Str("text", text).Msg("assistant says")

	closing := e.IsClosing(text)
	artifact, err := e.synthesize(ctx, conv.CallID, text)
	if err != nil {
		if closing {
			metrics.RecordTurnOutcome("closing")
			e.end(conv, "closing")
			return model.SpeakThenHangup(e.fallbackUtterance(e.profile.Goodbye))
		}
		return e.recover(ctx, conv, err)
	}
	utterance := model.Utterance{Text: text, AudioID: artifact.ID}

	if closing {
		metrics.RecordTurnOutcome("closing")
		e.end(conv, "closing")
		return model.SpeakThenHangup(utterance)
	}

	conv.ResetFailures()
	if err := e.transition(conv, model.StateListening); err != nil {
		e.end(conv, "invalid_state")
		return model.HangupOnly()
	}
	metrics.RecordTurnOutcome("completed")
	return model.SpeakThenCapture(utterance, e.profile.Capture)
}

// recover turns a failed turn into an apology and another capture, or into a
// goodbye and hangup once the call has failed too often.
func (e *Engine) recover(ctx context.Context, conv *model.Conversation, err error) model.Instruction {
	kind, _ := KindOf(err)
	failures := conv.RecordFailure()
	conv.AddEvent(model.NewEvent(e.clock.Now(), "turn.failed", map[string]any{
		"kind":     string(kind),
		"error":    err.Error(),
		"failures": failures,
	}))
	e.log.Warn().
		Err(err).
		Str("call_id", conv.CallID).
		Str("kind", string(kind)).
		Int("failures", failures).
		Msg("turn failed")

	if failures >= e.limits.MaxTurnFailures || errors.Is(err, ErrActionChainExceeded) {
		metrics.RecordTurnOutcome("failed_hangup")
		return e.giveUp(conv, "failures")
	}

	if err := e.transition(conv, model.StateListening); err != nil {
		e.end(conv, "invalid_state")
		return model.HangupOnly()
	}
	metrics.RecordTurnOutcome("failed_" + string(kind))
	return model.SpeakThenCapture(e.fallbackUtterance(e.profile.Apology), e.profile.Capture)
}

// giveUp ends a call the assistant cannot handle, handing it to the transfer
// number when one is configured.
func (e *Engine) giveUp(conv *model.Conversation, reason string) model.Instruction {
	if e.profile.Transfer != "" {
		text := e.profile.Handover
		if text == "" {
			text = e.profile.Goodbye
		}
		e.end(conv, "transferred")
		return model.SpeakThenConnect(e.fallbackUtterance(text), e.profile.Transfer)
	}
	e.end(conv, reason)
	return model.SpeakThenHangup(e.fallbackUtterance(e.profile.Goodbye))
}

// IsClosing reports whether an utterance contains the configured closing
// phrase, ignoring case and spacing.
func (e *Engine) IsClosing(text string) bool {
	phrase := normalizeSpeech(e.profile.ClosingPhrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(normalizeSpeech(text), phrase)
}

func normalizeSpeech(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// fallbackUtterance returns a pre-synthesized utterance when Warmup produced
// one, otherwise the text alone for provider speech.
func (e *Engine) fallbackUtterance(text string) model.Utterance {
	e.fallbackMu.RLock()
	id := e.fallback[text]
	e.fallbackMu.RUnlock()
	return model.Utterance{Text: text, AudioID: id}
}

func (e *Engine) recognize(ctx context.Context, callID string, audio model.AudioRef) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Recognition)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "recognize")
	defer span.End()

	start := time.Now()
	text, err := e.recognizer.Recognize(ctx, audio, e.profile.Locale)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyRecognition
	}
	metrics.ObserveExternalCall("recognition", err, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", newTurnError(KindRecognition, callID, err)
	}
	span.SetAttributes(attribute.Int("text_length", len(text)))
	return strings.TrimSpace(text), nil
}

func (e *Engine) synthesize(ctx context.Context, callID, text string) (*model.AudioArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Synthesis)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "synthesize")
	defer span.End()

	start := time.Now()
	artifact, err := e.synthesizer.Synthesize(ctx, text, e.profile.Voice)
	if err == nil && artifact == nil {
		err = errors.New("synthesizer returned no audio")
	}
	metrics.ObserveExternalCall("synthesis", err, time.Since(start))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, newTurnError(KindSynthesis, callID, err)
	}
	return artifact, nil
}
