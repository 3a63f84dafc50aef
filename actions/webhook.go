// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sprucehealth/voiceagent/model"
)

// WebhookBackend performs actions by posting them to a workflow tool router
// such as an n8n webhook.
type WebhookBackend struct {
	url        string
	httpClient *resty.Client
	log        zerolog.Logger
}

type invokeRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Call invokeCall     `json:"call"`
}

type invokeCall struct {
	CallID string `json:"call_id"`
}

// NewWebhookBackend creates a backend posting to url
func NewWebhookBackend(url string, timeout time.Duration, log zerolog.Logger) *WebhookBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetHeader("User-Agent", "VoiceAgent/1.0").
		SetTimeout(timeout)
	return &WebhookBackend{
		url:        url,
		httpClient: httpClient,
		log:        log.With().Str("component", "action-backend").Logger(),
	}
}

// Invoke posts an action and unwraps the router's answer. Every failure is
// returned as an unsuccessful result.
func (b *WebhookBackend) Invoke(ctx context.Context, name string, args map[string]any, cc model.CallContext) model.ActionResult {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := b.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(invokeRequest{Name: name, Args: args, Call: invokeCall{CallID: cc.CallID}}).
		Post(b.url)
	if err != nil {
		b.log.Warn().Err(err).Str("action", name).Str("call_id", cc.CallID).Msg("action request failed")
		return model.FailedResult(fmt.Errorf("action request failed: %w", err))
	}
	if resp.IsError() {
		return model.ActionResult{
			Success: false,
			Error:   fmt.Sprintf("action backend error (%d): %s", resp.StatusCode(), strings.TrimSpace(resp.String())),
		}
	}
	return ParseResult(resp.Body())
}

// ParseResult unwraps a router response. The payload is taken from "result",
// from "results[0].result" (an object or a JSON string), or is the body itself.
func ParseResult(body []byte) model.ActionResult {
	if len(strings.TrimSpace(string(body))) == 0 {
		return model.ActionResult{Success: true}
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.ActionResult{Success: true, Data: map[string]any{"result": string(body)}}
	}

	payload := raw
	if obj, ok := raw.(map[string]any); ok {
		if r, ok := obj["result"]; ok && truthy(r) {
			payload = r
		} else if results, ok := obj["results"].([]any); ok && len(results) > 0 {
			if first, ok := results[0].(map[string]any); ok && truthy(first["result"]) {
				payload = first["result"]
			}
		}
	}
	return toResult(payload)
}

func toResult(payload any) model.ActionResult {
	if s, ok := payload.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			if _, isString := decoded.(string); !isString {
				return toResult(decoded)
			}
		}
		return model.ActionResult{Success: true, Data: map[string]any{"result": s}}
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return model.ActionResult{Success: true, Data: map[string]any{"result": payload}}
	}

	result := model.ActionResult{Success: true, Data: obj}
	if success, ok := obj["success"].(bool); ok && !success {
		result.Success = false
		result.Error, _ = obj["error"].(string)
		if result.Error == "" {
			result.Error = "action failed"
		}
		result.Data = nil
	}
	return result
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	default:
		return true
	}
}
