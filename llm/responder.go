// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package llm implements the conversational response engine on a chat
// completion API with function calling.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sprucehealth/voiceagent/model"
)

// ErrNoChoices is returned when the completion API answers without a choice
var ErrNoChoices = errors.New("completion returned no choices")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures a Responder
type Config struct {
	Model           string
	SystemPrompt    string
	ContextTemplate string // see DefaultContextTemplate
	MaxTokens       int
	Temperature     float32
}

// Responder asks a chat model what the assistant should say or do next
type Responder struct {
	client  chatCompleter
	cfg     Config
	context *template.Template
	log     zerolog.Logger
}

// NewResponder creates a responder on an OpenAI-compatible client
func NewResponder(client *openai.Client, cfg Config, log zerolog.Logger) (*Responder, error) {
	return newResponder(client, cfg, log)
}

func newResponder(client chatCompleter, cfg Config, log zerolog.Logger) (*Responder, error) {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	tmpl, err := ParseContextTemplate(cfg.ContextTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse context template: %w", err)
	}
	return &Responder{
		client:  client,
		cfg:     cfg,
		context: tmpl,
		log:     log.With().Str("component", "responder").Logger(),
	}, nil
}

func (r *Responder) Respond(ctx context.Context, history []model.Turn, actions []model.ActionSpec, cc model.CallContext) (*model.Response, error) {
	system, err := SystemPrompt(r.cfg.SystemPrompt, r.context, cc)
	if err != nil {
		return nil, err
	}
	messages, err := Messages(system, history)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Tools:       Tools(actions),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	msg := resp.Choices[0].Message
	r.log.Debug().
		Str("call_id", cc.CallID).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("tool_calls", len(msg.ToolCalls)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("chat completion")

	if len(msg.ToolCalls) == 0 {
		return &model.Response{Utterance: strings.TrimSpace(msg.Content)}, nil
	}

	out := &model.Response{Actions: make([]model.ActionRequest, 0, len(msg.ToolCalls))}
	for _, call := range msg.ToolCalls {
		args, err := decodeArguments(call.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("tool call %s: %w", call.Function.Name, err)
		}
		out.Actions = append(out.Actions, model.ActionRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func decodeArguments(raw string) (map[string]any, error) {
	args := make(map[string]any)
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}
