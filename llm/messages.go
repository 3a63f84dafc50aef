// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sprucehealth/voiceagent/model"
)

// DefaultContextTemplate appends what is known about the caller to the system prompt
const DefaultContextTemplate = `CONTEXT:
- Caller phone number: {{if .CallerAddress}}{{.CallerAddress}}{{else}}unknown{{end}}
- Customer ID (if known): {{if .SubjectID}}{{.SubjectID}}{{else}}not looked up yet{{end}}`

// ParseContextTemplate compiles a context template executed with a model.CallContext
func ParseContextTemplate(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultContextTemplate
	}
	return template.New("context").Option("missingkey=zero").Parse(text)
}

// SystemPrompt renders the base prompt followed by the call context
func SystemPrompt(base string, tmpl *template.Template, cc model.CallContext) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(base)
	if tmpl != nil {
		buf.WriteString("\n\n")
		if err := tmpl.Execute(&buf, cc); err != nil {
			return "", fmt.Errorf("render context: %w", err)
		}
	}
	return buf.String(), nil
}

// Messages maps the conversation history to chat messages. Action requests
// become assistant tool calls and their results tool messages.
func Messages(system string, history []model.Turn) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, turn := range history {
		switch turn.Speaker {
		case model.SpeakerCaller:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: turn.Content,
			})
		case model.SpeakerAssistant:
			if turn.Action == nil {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: turn.Content,
				})
				continue
			}
			args, err := json.Marshal(turn.Action.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode arguments of %s: %w", turn.Action.Name, err)
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   turn.Action.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      turn.Action.Name,
						Arguments: string(args),
					},
				}},
			})
		case model.SpeakerToolResult:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    turn.Content,
				ToolCallID: turn.ActionID,
			})
		default:
			return nil, fmt.Errorf("unknown speaker %q", turn.Speaker)
		}
	}
	return messages, nil
}

// Tools describes the action catalog as function tools
func Tools(actions []model.ActionSpec) []openai.Tool {
	if len(actions) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(actions))
	for _, a := range actions {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        a.Name,
				Description: a.Description,
				Parameters:  a.Parameters,
			},
		})
	}
	return tools
}
