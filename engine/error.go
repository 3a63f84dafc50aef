// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCall is returned for events about a call that is not in the registry
	ErrUnknownCall = errors.New("unknown call")
	// ErrActionChainExceeded is returned when the response engine keeps requesting actions
	ErrActionChainExceeded = errors.New("action chain limit exceeded")
	// ErrEmptyRecognition is the cause of a RecognitionError when no text came back
	ErrEmptyRecognition = errors.New("recognition returned no text")
	// ErrEmptyResponse is the cause of a ResponseError when the utterance is blank
	ErrEmptyResponse = errors.New("response engine returned no utterance")
	// ErrInvalidTransition is returned when a state change is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ErrorKind classifies failures of external services
type ErrorKind string

const (
	KindRecognition    ErrorKind = "recognition"
	KindResponse       ErrorKind = "response"
	KindSynthesis      ErrorKind = "synthesis"
	KindActionDispatch ErrorKind = "action_dispatch"
)

// TurnError is a failure of one external call made during a turn
type TurnError struct {
	Kind   ErrorKind
	CallID string
	Cause  error
}

func (e *TurnError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("%s error on call %s: %v", e.Kind, e.CallID, e.Cause)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Cause)
}

func (e *TurnError) Unwrap() error {
	return e.Cause
}

func newTurnError(kind ErrorKind, callID string, cause error) *TurnError {
	return &TurnError{Kind: kind, CallID: callID, Cause: cause}
}

// KindOf returns the kind of a TurnError anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a TurnError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
