// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprucehealth/voiceagent/engine"
	"github.com/sprucehealth/voiceagent/httpstub"
	"github.com/sprucehealth/voiceagent/model"
)

func newOpenAIClient(t *testing.T, handler http.Handler) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestRecordingFetcherUsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "audio/x-wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	f := NewRecordingFetcher("AC123", "secret", time.Second)
	data, contentType, err := f.Fetch(context.Background(), model.AudioRef{URL: srv.URL + "/RE1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), data)
	assert.Equal(t, "audio/x-wav", contentType)
}

func TestRecordingFetcherInlineData(t *testing.T) {
	f := NewRecordingFetcher("", "", time.Second)
	data, contentType, err := f.Fetch(context.Background(), model.AudioRef{Data: []byte("x"), ContentType: "audio/mpeg"})
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
	assert.Equal(t, "audio/mpeg", contentType)
}

func TestRecordingFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewRecordingFetcher("", "", time.Second)
	_, _, err := f.Fetch(context.Background(), model.AudioRef{URL: srv.URL})
	assert.Error(t, err)

	_, _, err = f.Fetch(context.Background(), model.AudioRef{})
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestWhisperRecognize(t *testing.T) {
	recording := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFFdata"))
	}))
	defer recording.Close()

	var gotLanguage, gotModel string
	client := newOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  Jag vill boka en tid  "}`)
	}))

	w := NewWhisper(client, NewRecordingFetcher("", "", time.Second), "", zerolog.Nop())
	text, err := w.Recognize(context.Background(), model.AudioRef{URL: recording.URL}, "sv-SE")
	require.NoError(t, err)
	assert.Equal(t, "Jag vill boka en tid", text)
	assert.Equal(t, "sv", gotLanguage)
	assert.Equal(t, openai.Whisper1, gotModel)
}

func TestWhisperReportsFetchFailure(t *testing.T) {
	client := newOpenAIClient(t, http.NotFoundHandler())
	w := NewWhisper(client, NewRecordingFetcher("", "", time.Second), "", zerolog.Nop())

	_, err := w.Recognize(context.Background(), model.AudioRef{}, "sv")
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "sv", language("sv-SE"))
	assert.Equal(t, "en", language("en_US"))
	assert.Equal(t, "sv", language("sv"))
}

func TestOpenAITTSSynthesize(t *testing.T) {
	client := newOpenAIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))

	tts := NewOpenAITTS(client, "")
	artifact, err := tts.Synthesize(context.Background(), "Hej", "alloy")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3"), artifact.Data)
	assert.Equal(t, "audio/mpeg", artifact.ContentType)
	assert.Equal(t, ArtifactID("Hej", "alloy"), artifact.ID)
}

func TestArtifactIDDependsOnTextAndVoice(t *testing.T) {
	assert.Equal(t, ArtifactID("Hej", "alloy"), ArtifactID("Hej", "alloy"))
	assert.NotEqual(t, ArtifactID("Hej", "alloy"), ArtifactID("Hej", "nova"))
	assert.NotEqual(t, ArtifactID("Hej", "alloy"), ArtifactID("Hej då", "alloy"))
}

type countingSynthesizer struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (s *countingSynthesizer) Synthesize(ctx context.Context, text, voice string) (*model.AudioArtifact, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &model.AudioArtifact{ID: "inner", ContentType: "audio/mpeg", Data: []byte(text)}, nil
}

func TestCacheMemoizes(t *testing.T) {
	inner := &countingSynthesizer{}
	c, err := NewCache(inner, 8)
	require.NoError(t, err)

	a1, err := c.Synthesize(context.Background(), "Hej", "alloy")
	require.NoError(t, err)
	a2, err := c.Synthesize(context.Background(), "Hej", "alloy")
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, a1.ID, a2.ID)
	assert.Equal(t, ArtifactID("Hej", "alloy"), a1.ID)

	found, ok := c.Lookup(a1.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("Hej"), found.Data)
}

func TestCacheSharesConcurrentSynthesis(t *testing.T) {
	inner := &countingSynthesizer{release: make(chan struct{})}
	c, err := NewCache(inner, 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Synthesize(context.Background(), "Hej", "alloy")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.LessOrEqual(t, inner.calls.Load(), int32(5))
	assert.Equal(t, 1, c.Len())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	inner := &countingSynthesizer{err: errors.New("quota")}
	c, err := NewCache(inner, 8)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), "Hej", "alloy")
	assert.Error(t, err)
	_, err = c.Synthesize(context.Background(), "Hej", "alloy")
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCacheEvicts(t *testing.T) {
	c, err := NewCache(&countingSynthesizer{}, 1)
	require.NoError(t, err)

	first, err := c.Synthesize(context.Background(), "ett", "alloy")
	require.NoError(t, err)
	_, err = c.Synthesize(context.Background(), "två", "alloy")
	require.NoError(t, err)

	_, ok := c.Lookup(first.ID)
	assert.False(t, ok)
}

func TestCacheKeepsPinnedArtifacts(t *testing.T) {
	c, err := NewCache(&countingSynthesizer{}, 1)
	require.NoError(t, err)

	pinned := &model.AudioArtifact{ID: "apology", ContentType: "audio/mpeg", Data: []byte("förlåt")}
	c.Pin(pinned)
	_, err = c.Synthesize(context.Background(), "ett", "alloy")
	require.NoError(t, err)
	_, err = c.Synthesize(context.Background(), "två", "alloy")
	require.NoError(t, err)

	found, ok := c.Lookup("apology")
	require.True(t, ok)
	assert.Equal(t, []byte("förlåt"), found.Data)
}

func TestWarmupAudioSurvivesCacheTurnover(t *testing.T) {
	inner := &countingSynthesizer{}
	c, err := NewCache(inner, 4)
	require.NoError(t, err)

	profile := engine.Profile{
		Greeting:      "Elexperten, Lisa.",
		ClosingPhrase: "Hej då",
		Apology:       "Förlåt, kan du säga det igen?",
		Goodbye:       "Tyvärr har jag tekniska problem. Hej då.",
		Voice:         "nova",
		Locale:        "sv-SE",
		Capture:       model.Capture{TimeoutSeconds: 30, SilenceSeconds: 3},
	}
	e := engine.NewEngine(engine.Services{
		Recognizer:  httpstub.NewFakeRecognizer("Jag behöver en elektriker"),
		Responder:   httpstub.NewScriptedResponder().Say("Vilken adress gäller det?"),
		Synthesizer: c,
	}, engine.WithLogger(zerolog.Nop()), engine.WithProfile(profile))

	ctx := context.Background()
	require.NoError(t, e.Warmup(ctx))
	e.OnCallStart(ctx, "CA1", "+46700000000")

	// Ordinary utterances push the warmup audio out of the LRU
	for _, text := range []string{"ett", "två", "tre", "fyra"} {
		_, err := c.Synthesize(ctx, text, "nova")
		require.NoError(t, err)
	}

	inner.err = errors.New("tts unavailable")
	instr := e.OnAudioCaptured(ctx, "CA1", model.AudioRef{URL: "https://api.twilio.com/recordings/RE1"})

	require.NotNil(t, instr.Speak)
	assert.Equal(t, model.ThenCapture, instr.Then)
	assert.Equal(t, profile.Apology, instr.Speak.Text)
	require.NotEmpty(t, instr.Speak.AudioID)
	artifact, ok := c.Lookup(instr.Speak.AudioID)
	require.True(t, ok, "fallback audio %s is not servable", instr.Speak.AudioID)
	assert.Equal(t, []byte(profile.Apology), artifact.Data)
}
