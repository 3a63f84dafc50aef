// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sprucehealth/voiceagent/model"
)

// transcriber is the part of the OpenAI client used for recognition
type transcriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// Whisper recognizes caller speech with the OpenAI transcription API
type Whisper struct {
	client  transcriber
	fetcher *RecordingFetcher
	model   string
	log     zerolog.Logger
}

// NewWhisper creates a recognizer. An empty model selects whisper-1.
func NewWhisper(client *openai.Client, fetcher *RecordingFetcher, modelName string, log zerolog.Logger) *Whisper {
	if modelName == "" {
		modelName = openai.Whisper1
	}
	return &Whisper{
		client:  client,
		fetcher: fetcher,
		model:   modelName,
		log:     log.With().Str("component", "whisper").Logger(),
	}
}

// Recognize downloads the captured audio and transcribes it in the given locale
func (w *Whisper) Recognize(ctx context.Context, audio model.AudioRef, locale string) (string, error) {
	data, contentType, err := w.fetcher.Fetch(ctx, audio)
	if err != nil {
		return "", err
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "recording" + extensionFor(contentType),
		Reader:   bytes.NewReader(data),
		Language: language(locale),
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	w.log.Debug().Int("bytes", len(data)).Int("text_length", len(text)).Msg("transcribed recording")
	return text, nil
}

// language reduces a locale such as sv-SE to the ISO-639-1 code Whisper expects
func language(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return ".mp3"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	default:
		return ".wav"
	}
}
