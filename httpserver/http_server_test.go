// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprucehealth/voiceagent/config"
	"github.com/sprucehealth/voiceagent/engine"
	"github.com/sprucehealth/voiceagent/httpstub"
	"github.com/sprucehealth/voiceagent/model"
	"github.com/sprucehealth/voiceagent/speech"
	"github.com/sprucehealth/voiceagent/twiml"
)

const baseURL = "https://agent.example.com"

type harness struct {
	server      *HTTPServer
	engine      *engine.Engine
	recognizer  *httpstub.FakeRecognizer
	responder   *httpstub.ScriptedResponder
	synthesizer *httpstub.FakeSynthesizer
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:    "voiceagent",
		Environment:    "test",
		PublicBaseURL:  baseURL,
		ConsoleEnabled: true,
	}
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		recognizer:  httpstub.NewFakeRecognizer(),
		responder:   httpstub.NewScriptedResponder(),
		synthesizer: httpstub.NewFakeSynthesizer(),
	}
	cache, err := speech.NewCache(h.synthesizer, 16)
	require.NoError(t, err)

	h.engine = engine.NewEngine(engine.Services{
		Recognizer:  h.recognizer,
		Responder:   h.responder,
		Actions:     httpstub.NewFakeActionBackend(),
		Synthesizer: cache,
	})

	o := Options{
		Calls:  h.engine,
		Audio:  cache,
		Render: twiml.RenderOptions{BaseURL: baseURL},
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.server, err = New(testConfig(), zerolog.Nop(), o)
	require.NoError(t, err)
	return h
}

func (h *harness) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, req)
	return w
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func parseTwiML(t *testing.T, w *httptest.ResponseRecorder) *twiml.Response {
	t.Helper()
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	resp, err := twiml.Parse(w.Body.Bytes())
	require.NoError(t, err, "body: %s", w.Body.String())
	return resp
}

func TestIncomingCallGreetsAndServesAudio(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/voice/incoming", url.Values{"CallSid": {"CA1"}, "From": {"+46700000000"}})
	require.Equal(t, http.StatusOK, w.Code)

	resp := parseTwiML(t, w)
	require.Equal(t, []string{"Play", "Record", "Redirect"}, resp.Verbs())

	play := resp.Children[0].(*twiml.Play)
	require.True(t, strings.HasPrefix(play.URL, baseURL+"/audio/"))

	audio := h.get(t, strings.TrimPrefix(play.URL, baseURL))
	require.Equal(t, http.StatusOK, audio.Code)
	assert.Equal(t, "audio/mpeg", audio.Header().Get("Content-Type"))
	assert.Equal(t, engine.DefaultProfile().Greeting, audio.Body.String())

	snaps := h.engine.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "+46700000000", snaps[0].CallerAddress)
}

func TestRecordingRunsTurn(t *testing.T) {
	h := newHarness(t)
	h.recognizer.Queue("My fuse keeps blowing")
	h.responder.Say("Okay, let's book an electrician.")

	h.post(t, "/voice/incoming", url.Values{"CallSid": {"CA1"}, "From": {"+46700000000"}})
	w := h.post(t, "/voice/recording", url.Values{
		"CallSid":      {"CA1"},
		"RecordingUrl": {"https://api.twilio.com/recordings/RE1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := parseTwiML(t, w)
	assert.Equal(t, []string{"Play", "Record", "Redirect"}, resp.Verbs())

	calls := h.recognizer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://api.twilio.com/recordings/RE1", calls[0].Audio.URL)

	history := h.engine.Snapshot()[0].History
	require.Len(t, history, 3)
	assert.Equal(t, "My fuse keeps blowing", history[1].Content)
	assert.Equal(t, "Okay, let's book an electrician.", history[2].Content)
}

func TestRecordingWithoutAudioCapturesAgain(t *testing.T) {
	h := newHarness(t)
	h.post(t, "/voice/incoming", url.Values{"CallSid": {"CA1"}})

	w := h.post(t, "/voice/recording", url.Values{"CallSid": {"CA1"}})
	resp := parseTwiML(t, w)
	assert.Equal(t, []string{"Record", "Redirect"}, resp.Verbs())
	assert.Empty(t, h.recognizer.Calls())
}

func TestUnknownCallHangsUp(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/voice/recording", url.Values{"CallSid": {"CAnope"}, "RecordingUrl": {"https://x/rec"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Hangup"}, parseTwiML(t, w).Verbs())
}

func TestMissingCallSid(t *testing.T) {
	h := newHarness(t)

	w := h.post(t, "/voice/incoming", url.Values{"From": {"+46700000000"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"Hangup"}, parseTwiML(t, w).Verbs())
}

func TestStatusCallbackEndsCall(t *testing.T) {
	h := newHarness(t)
	h.post(t, "/voice/incoming", url.Values{"CallSid": {"CA1"}})

	w := h.post(t, "/voice/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"in-progress"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, h.engine.Snapshot(), 1)

	w = h.post(t, "/voice/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, h.engine.Snapshot())

	w = h.post(t, "/voice/recording", url.Values{"CallSid": {"CA1"}, "RecordingUrl": {"https://x/rec"}})
	assert.Equal(t, []string{"Hangup"}, parseTwiML(t, w).Verbs())
}

func TestUnknownAudio(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/audio/missing").Code)
}

type stubCalls struct {
	instr model.Instruction
}

func (s stubCalls) OnCallStart(context.Context, string, string) model.Instruction { return s.instr }
func (s stubCalls) OnAudioCaptured(context.Context, string, model.AudioRef) model.Instruction {
	return s.instr
}
func (s stubCalls) OnCallEnded(context.Context, string)     {}
func (s stubCalls) Snapshot() []model.ConversationSnapshot { return nil }

func TestUnrenderableInstructionHangsUp(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Calls = stubCalls{instr: model.Instruction{Then: model.ThenConnect}}
	})

	w := h.post(t, "/voice/incoming", url.Values{"CallSid": {"CA1"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, twiml.HangupDocument, w.Body.String())
}

func TestCoreRoutes(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.get(t, "/").Code)
	assert.Equal(t, http.StatusOK, h.get(t, "/healthz").Code)
	assert.Equal(t, http.StatusOK, h.get(t, "/readyz").Code)

	h.post(t, "/voice/incoming", url.Values{"CallSid": {"CA1"}})
	metrics := h.get(t, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "voiceagent_http_requests_total")

	w := h.get(t, "/console/api/calls/CA1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReadyzReportsStarting(t *testing.T) {
	ready := false
	h := newHarness(t, func(o *Options) { o.Ready = func() bool { return ready } })

	assert.Equal(t, http.StatusServiceUnavailable, h.get(t, "/readyz").Code)
	ready = true
	assert.Equal(t, http.StatusOK, h.get(t, "/readyz").Code)
}
