// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package speech connects the voice agent to speech recognition and synthesis.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sprucehealth/voiceagent/model"
)

// ErrNoAudio is returned when an audio reference carries neither data nor URL
var ErrNoAudio = errors.New("audio reference is empty")

// RecordingFetcher downloads caller recordings from the telephony provider
type RecordingFetcher struct {
	httpClient *resty.Client
}

// NewRecordingFetcher creates a fetcher. Twilio serves recordings behind the
// account's basic auth; leave username empty for public URLs.
func NewRecordingFetcher(username, password string, timeout time.Duration) *RecordingFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetHeader("User-Agent", "VoiceAgent/1.0").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond)
	if username != "" {
		httpClient.SetBasicAuth(username, password)
	}
	return &RecordingFetcher{httpClient: httpClient}
}

// Fetch returns the bytes and content type behind an audio reference
func (f *RecordingFetcher) Fetch(ctx context.Context, ref model.AudioRef) ([]byte, string, error) {
	if len(ref.Data) > 0 {
		return ref.Data, ref.ContentType, nil
	}
	if ref.URL == "" {
		return nil, "", ErrNoAudio
	}

	resp, err := f.httpClient.R().
		SetContext(ctx).
		Get(ref.URL)
	if err != nil {
		return nil, "", fmt.Errorf("recording download failed: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("recording download error (%d): %s", resp.StatusCode(), resp.Status())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, "", ErrNoAudio
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = ref.ContentType
	}
	return body, contentType, nil
}
