// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twiml

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	twilio "github.com/twilio/twilio-go/twiml"

	"github.com/sprucehealth/voiceagent/model"
)

// HangupDocument is a well-formed response that ends the call. Handlers fall
// back to it when an instruction cannot be rendered.
const HangupDocument = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

// RenderOptions describes where the call-control endpoints live
type RenderOptions struct {
	BaseURL       string // public base URL the provider can reach
	RecordingPath string // where captured audio is posted
	AudioPath     string // prefix under which synthesized audio is served
	Voice         string // provider voice for text fallbacks
	Language      string
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.RecordingPath == "" {
		o.RecordingPath = "/voice/recording"
	}
	if o.AudioPath == "" {
		o.AudioPath = "/audio/"
	}
	if !strings.HasSuffix(o.AudioPath, "/") {
		o.AudioPath += "/"
	}
	return o
}

// AudioURL returns the absolute URL of a synthesized artifact
func (o RenderOptions) AudioURL(id string) (string, error) {
	o = o.withDefaults()
	return resolveURL(o.BaseURL, o.AudioPath+url.PathEscape(id))
}

// RecordingURL returns the absolute URL captured audio is posted to
func (o RenderOptions) RecordingURL() (string, error) {
	o = o.withDefaults()
	return resolveURL(o.BaseURL, o.RecordingPath)
}

// Render encodes an instruction as a TwiML document.
//
// A capture becomes <Record> followed by a <Redirect> to the same endpoint:
// Twilio skips the record action when nothing was said, so the redirect is
// what reports silence.
func Render(instr model.Instruction, opts RenderOptions) (string, error) {
	opts = opts.withDefaults()
	var verbs []twilio.Element

	if instr.Speak != nil {
		verb, err := utteranceVerb(*instr.Speak, opts)
		if err != nil {
			return "", err
		}
		if verb != nil {
			verbs = append(verbs, verb)
		}
	}

	switch instr.Then {
	case model.ThenCapture:
		recordingURL, err := opts.RecordingURL()
		if err != nil {
			return "", err
		}
		verbs = append(verbs,
			&twilio.VoiceRecord{
				Action:    recordingURL,
				Method:    "POST",
				Timeout:   strconv.Itoa(instr.Capture.SilenceSeconds),
				MaxLength: strconv.Itoa(instr.Capture.TimeoutSeconds),
				PlayBeep:  "false",
				Trim:      "trim-silence",
			},
			&twilio.VoiceRedirect{
				Url:    recordingURL,
				Method: "POST",
			},
		)
	case model.ThenConnect:
		if instr.ConnectTo == "" {
			return "", fmt.Errorf("connect instruction without a number")
		}
		verbs = append(verbs, &twilio.VoiceDial{
			InnerElements: []twilio.Element{
				&twilio.VoiceNumber{PhoneNumber: instr.ConnectTo},
			},
		})
	case model.ThenHangup:
		verbs = append(verbs, &twilio.VoiceHangup{})
	default:
		return "", fmt.Errorf("unknown instruction continuation %q", instr.Then)
	}

	return twilio.Voice(verbs)
}

func utteranceVerb(u model.Utterance, opts RenderOptions) (twilio.Element, error) {
	if u.AudioID != "" {
		audioURL, err := opts.AudioURL(u.AudioID)
		if err != nil {
			return nil, err
		}
		return &twilio.VoicePlay{Url: audioURL}, nil
	}
	if strings.TrimSpace(u.Text) == "" {
		return nil, nil
	}
	return &twilio.VoiceSay{
		Message:  u.Text,
		Voice:    opts.Voice,
		Language: opts.Language,
	}, nil
}

// resolveURL resolves ref relative to base. Absolute refs are returned as is.
func resolveURL(base, ref string) (string, error) {
	target, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}

	if target.IsAbs() {
		return target.String(), nil
	}

	if base == "" {
		return "", fmt.Errorf("cannot resolve relative URL %q without base", ref)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}

	return baseURL.ResolveReference(target).String(), nil
}
