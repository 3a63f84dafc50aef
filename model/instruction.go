// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package model

// Then is what the call does after an instruction's utterance finishes
type Then string

const (
	ThenCapture Then = "capture"
	ThenHangup  Then = "hangup"
	ThenConnect Then = "connect" // hand the caller over to ConnectTo
)

// Utterance is something the assistant says. AudioID refers to a synthesized
// artifact; when it is empty the adapter falls back to provider text-to-speech.
type Utterance struct {
	Text    string `json:"text"`
	AudioID string `json:"audio_id,omitempty"`
}

// Capture controls how caller audio is recorded
type Capture struct {
	TimeoutSeconds int `json:"timeout_seconds"` // maximum recording length
	SilenceSeconds int `json:"silence_seconds"` // trailing silence that ends the recording
}

// Instruction is the call-control decision returned for every inbound event.
// With Speak nil it is a bare capture or hangup.
type Instruction struct {
	Speak     *Utterance `json:"speak,omitempty"`
	Then      Then       `json:"then"`
	Capture   Capture    `json:"capture,omitempty"`
	ConnectTo string     `json:"connect_to,omitempty"`
}

func SpeakThenCapture(u Utterance, c Capture) Instruction {
	return Instruction{Speak: &u, Then: ThenCapture, Capture: c}
}

func SpeakThenHangup(u Utterance) Instruction {
	return Instruction{Speak: &u, Then: ThenHangup}
}

func SpeakThenConnect(u Utterance, number string) Instruction {
	return Instruction{Speak: &u, Then: ThenConnect, ConnectTo: number}
}

func CaptureOnly(c Capture) Instruction {
	return Instruction{Then: ThenCapture, Capture: c}
}

func HangupOnly() Instruction {
	return Instruction{Then: ThenHangup}
}

// EndsCall reports whether the assistant is done with the call
func (i Instruction) EndsCall() bool {
	return i.Then == ThenHangup || i.Then == ThenConnect
}

// AudioRef points at captured caller audio, either by URL or inline bytes
type AudioRef struct {
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"`
	ContentType string `json:"content_type,omitempty"`
}

func (a AudioRef) IsEmpty() bool {
	return a.URL == "" && len(a.Data) == 0
}

// AudioArtifact is synthesized speech ready to be played to the caller
type AudioArtifact struct {
	ID          string
	ContentType string
	Data        []byte
}
