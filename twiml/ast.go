// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twiml

import "time"

// Node is the interface for all TwiML AST nodes
type Node interface {
	isNode()
}

// Response is the root TwiML element
type Response struct {
	Children []Node
}

func (Response) isNode() {}

// Say outputs provider text-to-speech
type Say struct {
	Text     string
	Voice    string
	Language string
}

func (Say) isNode() {}

// Play plays an audio file
type Play struct {
	URL string
}

func (Play) isNode() {}

// Record records the caller's voice and posts it to Action
type Record struct {
	MaxLength time.Duration
	Timeout   time.Duration // trailing silence that ends the recording
	PlayBeep  bool
	Trim      string
	Action    string
	Method    string
}

func (Record) isNode() {}

// Redirect fetches new TwiML from a URL
type Redirect struct {
	URL    string
	Method string
}

func (Redirect) isNode() {}

// Hangup ends the call
type Hangup struct{}

func (Hangup) isNode() {}

// Dial connects the caller to another party
type Dial struct {
	Number   string
	Timeout  time.Duration
	Children []Node // nested <Number>
}

func (Dial) isNode() {}

// Number is used inside <Dial> to specify a phone number
type Number struct {
	Number string
}

func (Number) isNode() {}

// Verbs returns the names of the top-level verbs in document order
func (r *Response) Verbs() []string {
	names := make([]string, 0, len(r.Children))
	for _, child := range r.Children {
		switch child.(type) {
		case *Say:
			names = append(names, "Say")
		case *Play:
			names = append(names, "Play")
		case *Record:
			names = append(names, "Record")
		case *Redirect:
			names = append(names, "Redirect")
		case *Hangup:
			names = append(names, "Hangup")
		case *Dial:
			names = append(names, "Dial")
		case *Number:
			names = append(names, "Number")
		}
	}
	return names
}
