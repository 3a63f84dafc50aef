// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprucehealth/voiceagent/actions"
	"github.com/sprucehealth/voiceagent/engine"
	"github.com/sprucehealth/voiceagent/httpstub"
	"github.com/sprucehealth/voiceagent/model"
)

const callerNumber = "+46700000000"

func testProfile() engine.Profile {
	return engine.Profile{
		Greeting:      "Elexperten, Lisa. Hur kan jag hjälpa dig?",
		ClosingPhrase: "Hej då",
		Apology:       "Förlåt, kan du säga det igen?",
		Goodbye:       "Tyvärr har jag tekniska problem. Hej då.",
		Handover:      "Jag kopplar dig vidare.",
		Voice:         "nova",
		Locale:        "sv-SE",
		Capture:       model.Capture{TimeoutSeconds: 30, SilenceSeconds: 3},
	}
}

type fixture struct {
	engine      *engine.Engine
	clock       *engine.ManualClock
	recognizer  *httpstub.FakeRecognizer
	responder   *httpstub.ScriptedResponder
	backend     *httpstub.FakeActionBackend
	synthesizer *httpstub.FakeSynthesizer
}

func newFixture(t *testing.T, opts ...engine.EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		clock:       engine.NewManualClock(time.Time{}),
		recognizer:  httpstub.NewFakeRecognizer(),
		responder:   httpstub.NewScriptedResponder(),
		backend:     httpstub.NewFakeActionBackend(),
		synthesizer: httpstub.NewFakeSynthesizer(),
	}
	base := []engine.EngineOption{
		engine.WithClock(f.clock),
		engine.WithLogger(zerolog.Nop()),
		engine.WithProfile(testProfile()),
		engine.WithActionCatalog(actions.Catalog()),
	}
	f.engine = engine.NewEngine(engine.Services{
		Recognizer:  f.recognizer,
		Responder:   f.responder,
		Actions:     f.backend,
		Synthesizer: f.synthesizer,
	}, append(base, opts...)...)
	return f
}

// start answers a call and fails the test unless the greeting is returned
func (f *fixture) start(t *testing.T, callID string) model.Instruction {
	t.Helper()
	instr := f.engine.OnCallStart(context.Background(), callID, callerNumber)
	if instr.Speak == nil || instr.Then != model.ThenCapture {
		t.Fatalf("expected greeting and capture, got %+v", instr)
	}
	return instr
}

// say runs a turn in which the caller said text
func (f *fixture) say(callID, text string) model.Instruction {
	f.recognizer.Queue(text)
	return f.engine.OnAudioCaptured(context.Background(), callID, recording(text))
}

func (f *fixture) history(t *testing.T, callID string) []model.Turn {
	t.Helper()
	conv, ok := f.engine.Registry().Get(callID)
	if !ok {
		t.Fatalf("call %s not registered", callID)
	}
	return conv.History()
}

func recording(name string) model.AudioRef {
	return model.AudioRef{URL: "https://api.twilio.com/recordings/" + url.PathEscape(name)}
}

func speakers(history []model.Turn) []model.Speaker {
	out := make([]model.Speaker, len(history))
	for i, turn := range history {
		out[i] = turn.Speaker
	}
	return out
}
