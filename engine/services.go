// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"context"

	"github.com/sprucehealth/voiceagent/model"
)

// Recognizer turns captured caller audio into text
type Recognizer interface {
	Recognize(ctx context.Context, audio model.AudioRef, locale string) (string, error)
}

// Responder is the conversational-response engine. It either answers with an
// utterance or asks for one or more actions to be performed first.
type Responder interface {
	Respond(ctx context.Context, history []model.Turn, actions []model.ActionSpec, cc model.CallContext) (*model.Response, error)
}

// ActionBackend performs external business actions. Implementations report
// every failure as an ActionResult instead of an error.
type ActionBackend interface {
	Invoke(ctx context.Context, name string, args map[string]any, cc model.CallContext) model.ActionResult
}

// Synthesizer renders text as speech. Results depend only on text and voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*model.AudioArtifact, error)
}

// AudioPinner is implemented by synthesizers that evict audio. Pinned
// artifacts stay servable for the life of the process.
type AudioPinner interface {
	Pin(artifact *model.AudioArtifact)
}

// CallTerminator ends a call at the telephony provider
type CallTerminator interface {
	Hangup(ctx context.Context, callID string) error
}

// Services bundles the external collaborators the engine depends on
type Services struct {
	Recognizer  Recognizer
	Responder   Responder
	Actions     ActionBackend
	Synthesizer Synthesizer
}
