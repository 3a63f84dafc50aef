// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package model

import "encoding/json"

// ContextField names a fact from the call context that can fill an action argument
type ContextField string

const (
	ContextCallID        ContextField = "call_id"
	ContextCallerAddress ContextField = "caller_address"
	ContextSubjectID     ContextField = "subject_id"
)

// Value returns the call context value for a field
func (cc CallContext) Value(f ContextField) string {
	switch f {
	case ContextCallID:
		return cc.CallID
	case ContextCallerAddress:
		return cc.CallerAddress
	case ContextSubjectID:
		return cc.SubjectID
	default:
		return ""
	}
}

// ActionSpec describes an external action the response engine may request.
// ContextArgs maps argument names to the call context field injected when the
// response engine leaves the argument out.
type ActionSpec struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Parameters  any                     `json:"parameters,omitempty"`
	ContextArgs map[string]ContextField `json:"-"`
}

// ActionRequest is a structured request from the response engine
type ActionRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ActionResult is what the action backend returned. Failures are results too.
type ActionResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// FailedResult builds the structured failure handed back to the response engine
func FailedResult(err error) ActionResult {
	return ActionResult{Success: false, Error: err.Error()}
}

// Content renders the result the way it is replayed to the response engine
func (r ActionResult) Content() string {
	var v any
	switch {
	case !r.Success:
		v = map[string]any{"success": false, "error": r.Error}
	case r.Data != nil:
		v = r.Data
	default:
		v = map[string]any{"success": true}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"error":"unencodable result"}`
	}
	return string(b)
}

// Response is the response engine's answer: either an utterance or action requests
type Response struct {
	Utterance string          `json:"utterance,omitempty"`
	Actions   []ActionRequest `json:"actions,omitempty"`
}

func (r *Response) WantsAction() bool {
	return r != nil && len(r.Actions) > 0
}
