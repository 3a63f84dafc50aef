// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sprucehealth/voiceagent/engine"
	"github.com/sprucehealth/voiceagent/model"
)

//go:embed profile.yaml
var defaultProfile []byte

// Profile is the assistant persona as written in a profile file
type Profile struct {
	Greeting        string         `yaml:"greeting"`
	ClosingPhrase   string         `yaml:"closing_phrase"`
	Apology         string         `yaml:"apology"`
	Goodbye         string         `yaml:"goodbye"`
	Handover        string         `yaml:"handover"`
	TransferNumber  string         `yaml:"transfer_number"`
	Voice           string         `yaml:"voice"`
	SayVoice        string         `yaml:"say_voice"`
	Locale          string         `yaml:"locale"`
	Capture         CaptureProfile `yaml:"capture"`
	SystemPrompt    string         `yaml:"system_prompt"`
	ContextTemplate string         `yaml:"context_template"`
}

type CaptureProfile struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	SilenceSeconds int `yaml:"silence_seconds"`
}

// LoadProfile reads a profile file, or the built-in profile when path is empty
func LoadProfile(path string) (*Profile, error) {
	data := defaultProfile
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile: %w", err)
		}
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"greeting":       p.Greeting,
		"closing_phrase": p.ClosingPhrase,
		"apology":        p.Apology,
		"goodbye":        p.Goodbye,
		"voice":          p.Voice,
		"system_prompt":  p.SystemPrompt,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("profile is missing %s", strings.Join(missing, ", "))
	}
	if p.Capture.TimeoutSeconds <= 0 || p.Capture.SilenceSeconds <= 0 {
		return fmt.Errorf("profile capture timeouts must be positive")
	}
	if p.Capture.SilenceSeconds > p.Capture.TimeoutSeconds {
		return fmt.Errorf("profile silence_seconds exceeds timeout_seconds")
	}
	return nil
}

// Engine converts the persona into the turn engine profile. transfer overrides
// the profile's transfer number when set.
func (p *Profile) Engine(transfer string) engine.Profile {
	if transfer == "" {
		transfer = p.TransferNumber
	}
	return engine.Profile{
		Greeting:      p.Greeting,
		ClosingPhrase: p.ClosingPhrase,
		Apology:       p.Apology,
		Goodbye:       p.Goodbye,
		Transfer:      transfer,
		Handover:      p.Handover,
		Voice:         p.Voice,
		Locale:        p.Locale,
		Capture: model.Capture{
			TimeoutSeconds: p.Capture.TimeoutSeconds,
			SilenceSeconds: p.Capture.SilenceSeconds,
		},
	}
}

