// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/sprucehealth/voiceagent/actions"
	"github.com/sprucehealth/voiceagent/config"
	"github.com/sprucehealth/voiceagent/engine"
	"github.com/sprucehealth/voiceagent/httpserver"
	"github.com/sprucehealth/voiceagent/llm"
	"github.com/sprucehealth/voiceagent/logger"
	"github.com/sprucehealth/voiceagent/observability"
	"github.com/sprucehealth/voiceagent/speech"
	"github.com/sprucehealth/voiceagent/twilioapi"
	"github.com/sprucehealth/voiceagent/twiml"
)

// Application runs the webhook server next to the background work the
// engine needs.
type Application struct {
	httpServer *httpserver.HTTPServer
	engine     *engine.Engine
	reaper     *engine.Reaper
	ready      *atomic.Bool
	log        zerolog.Logger
}

// Start serves webhooks until ctx is cancelled. Fallback audio is prepared
// concurrently; /readyz reports ready once it is done.
func (a *Application) Start(ctx context.Context) error {
	a.reaper.Start(ctx)
	defer a.reaper.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.httpServer.Run(ctx)
	})
	g.Go(func() error {
		if err := a.engine.Warmup(ctx); err != nil {
			// Fallbacks then use provider speech
			a.log.Warn().Err(err).Msg("warmup of fallback audio failed")
		}
		a.ready.Store(true)
		return nil
	})
	return g.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	app, err := newApplication(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize application")
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func newApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}

	openaiConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		openaiConfig.BaseURL = cfg.OpenAIBaseURL
	}
	openaiClient := openai.NewClientWithConfig(openaiConfig)

	fetcher := speech.NewRecordingFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.RecognitionTimeout)
	recognizer := speech.NewWhisper(openaiClient, fetcher, cfg.TranscriptionModel, log)

	synthesizer, err := speech.NewCache(speech.NewOpenAITTS(openaiClient, cfg.SpeechModel), cfg.SynthesisCacheSize)
	if err != nil {
		return nil, err
	}

	responder, err := llm.NewResponder(openaiClient, llm.Config{
		Model:           cfg.ChatModel,
		SystemPrompt:    profile.SystemPrompt,
		ContextTemplate: profile.ContextTemplate,
		MaxTokens:       cfg.ChatMaxTokens,
		Temperature:     cfg.ChatTemperature,
	}, log)
	if err != nil {
		return nil, err
	}

	services := engine.Services{
		Recognizer:  recognizer,
		Responder:   responder,
		Synthesizer: synthesizer,
	}
	opts := []engine.EngineOption{
		engine.WithLogger(log),
		engine.WithProfile(profile.Engine(cfg.TransferNumber)),
		engine.WithTimeouts(engine.Timeouts{
			Recognition: cfg.RecognitionTimeout,
			Response:    cfg.ResponseTimeout,
			Synthesis:   cfg.SynthesisTimeout,
			Action:      cfg.ActionTimeout,
		}),
		engine.WithLimits(engine.Limits{
			MaxTurnFailures: cfg.MaxTurnFailures,
			MaxActionChain:  cfg.MaxActionChain,
		}),
	}
	if cfg.ActionsEnabled() {
		services.Actions = actions.NewWebhookBackend(cfg.ActionWebhookURL, cfg.ActionTimeout, log)
		opts = append(opts, engine.WithActionCatalog(actions.Catalog()))
	} else {
		log.Warn().Msg("ACTION_WEBHOOK_URL not set, the assistant runs without actions")
	}
	eng := engine.NewEngine(services, opts...)

	reaperOpts := []engine.ReaperOption{engine.WithReaperLogger(log)}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		reaperOpts = append(reaperOpts, engine.WithTerminator(
			twilioapi.NewRestClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, log),
		))
	}
	reaper := engine.NewReaper(eng, cfg.CallMaxAge, cfg.ReaperInterval, reaperOpts...)

	ready := &atomic.Bool{}
	serverOpts := httpserver.Options{
		Calls: eng,
		Audio: synthesizer,
		Render: twiml.RenderOptions{
			BaseURL:  cfg.PublicBaseURL,
			Voice:    profile.SayVoice,
			Language: profile.Locale,
		},
		Ready: ready.Load,
	}
	httpServer, err := httpserver.New(cfg, log, serverOpts)
	if err != nil {
		return nil, err
	}

	return &Application{
		httpServer: httpServer,
		engine:     eng,
		reaper:     reaper,
		ready:      ready,
		log:        log,
	}, nil
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
