// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sprucehealth/voiceagent/model"
)

// speechCreator is the part of the OpenAI client used for synthesis
type speechCreator interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAITTS synthesizes assistant utterances as MP3 with the OpenAI speech API
type OpenAITTS struct {
	client speechCreator
	model  openai.SpeechModel
}

// NewOpenAITTS creates a synthesizer. An empty model selects tts-1.
func NewOpenAITTS(client *openai.Client, modelName string) *OpenAITTS {
	m := openai.TTSModel1
	if modelName != "" {
		m = openai.SpeechModel(modelName)
	}
	return &OpenAITTS{client: client, model: m}
}

func (t *OpenAITTS) Synthesize(ctx context.Context, text, voice string) (*model.AudioArtifact, error) {
	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          t.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("speech synthesis returned no audio")
	}
	return &model.AudioArtifact{
		ID:          ArtifactID(text, voice),
		ContentType: "audio/mpeg",
		Data:        data,
	}, nil
}

// ArtifactID identifies synthesized audio by its literal text and voice
func ArtifactID(text, voice string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	return hex.EncodeToString(sum[:16])
}
