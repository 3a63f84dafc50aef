// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"fmt"

	"github.com/sprucehealth/voiceagent/metrics"
	"github.com/sprucehealth/voiceagent/model"
)

// transitions lists the states reachable from each state.
// ENDED has no successors.
var transitions = map[model.State][]model.State{
	model.StateGreeting:  {model.StateListening, model.StateEnded},
	model.StateListening: {model.StateThinking, model.StateEnded},
	model.StateThinking:  {model.StateSpeaking, model.StateListening, model.StateEnded},
	model.StateSpeaking:  {model.StateListening, model.StateEnded},
	model.StateEnded:     nil,
}

// CanTransition reports whether the turn engine may move from one state to another
func CanTransition(from, to model.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves a conversation to a new state
func (e *Engine) transition(conv *model.Conversation, to model.State) error {
	from := conv.State()
	if !CanTransition(from, to) {
		e.log.Error().
			Str("call_id", conv.CallID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("rejected state transition")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	conv.SetState(to, e.clock.Now())
	metrics.RecordStateTransition(string(from), string(to))
	e.log.Debug().
		Str("call_id", conv.CallID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("state changed")
	return nil
}
