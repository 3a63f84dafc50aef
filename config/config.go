// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package config loads the voice agent configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the voice agent service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"voiceagent"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"PORT" envDefault:"3000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Public URL the telephony provider uses to reach this service
	PublicBaseURL string `env:"BASE_URL"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// OpenAI (recognition, response engine and synthesis)
	OpenAIAPIKey       string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string  `env:"OPENAI_BASE_URL" envDefault:""`
	ChatModel          string  `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`
	ChatTemperature    float32 `env:"CHAT_TEMPERATURE" envDefault:"0.3"`
	ChatMaxTokens      int     `env:"CHAT_MAX_TOKENS" envDefault:"500"`
	TranscriptionModel string  `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	SpeechModel        string  `env:"SPEECH_MODEL" envDefault:"tts-1"`

	// Twilio credentials, used to download recordings and hang up expired calls
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`

	// Action backend (workflow tool router). Empty disables actions.
	ActionWebhookURL string `env:"ACTION_WEBHOOK_URL" envDefault:""`

	// Assistant persona file. Empty uses the built-in profile.
	ProfilePath string `env:"PROFILE_PATH" envDefault:""`
	// Number that takes over calls the assistant gives up on. Overrides the profile.
	TransferNumber string `env:"TRANSFER_NUMBER" envDefault:""`

	// Per-call deadlines of external services
	RecognitionTimeout time.Duration `env:"RECOGNITION_TIMEOUT" envDefault:"15s"`
	ResponseTimeout    time.Duration `env:"RESPONSE_TIMEOUT" envDefault:"20s"`
	SynthesisTimeout   time.Duration `env:"SYNTHESIS_TIMEOUT" envDefault:"15s"`
	ActionTimeout      time.Duration `env:"ACTION_TIMEOUT" envDefault:"30s"`

	// Retry bounds
	MaxTurnFailures int `env:"MAX_TURN_FAILURES" envDefault:"3"`
	MaxActionChain  int `env:"MAX_ACTION_CHAIN" envDefault:"3"`

	// Call expiry
	CallMaxAge     time.Duration `env:"CALL_MAX_AGE" envDefault:"1h"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// Synthesized audio kept for playback
	SynthesisCacheSize int `env:"SYNTHESIS_CACHE_SIZE" envDefault:"512"`

	// Debug console exposing active conversations
	ConsoleEnabled bool `env:"CONSOLE_ENABLED" envDefault:"false"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and bounds
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	u, err := url.Parse(c.PublicBaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.PublicBaseURL)
	}
	if c.MaxTurnFailures < 1 {
		return fmt.Errorf("MAX_TURN_FAILURES must be at least 1")
	}
	if c.MaxActionChain < 1 {
		return fmt.Errorf("MAX_ACTION_CHAIN must be at least 1")
	}
	if c.SynthesisCacheSize < 1 {
		return fmt.Errorf("SYNTHESIS_CACHE_SIZE must be at least 1")
	}
	if c.CallMaxAge <= 0 || c.ReaperInterval <= 0 {
		return fmt.Errorf("CALL_MAX_AGE and REAPER_INTERVAL must be positive")
	}
	return nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ActionsEnabled reports whether an action backend is configured
func (c *Config) ActionsEnabled() bool {
	return strings.TrimSpace(c.ActionWebhookURL) != ""
}
