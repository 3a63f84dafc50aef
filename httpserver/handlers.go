// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sprucehealth/voiceagent/model"
	"github.com/sprucehealth/voiceagent/twiml"
)

// CallHandler is the turn engine as seen by the webhooks. *engine.Engine
// satisfies it.
type CallHandler interface {
	OnCallStart(ctx context.Context, callID, callerAddress string) model.Instruction
	OnAudioCaptured(ctx context.Context, callID string, audio model.AudioRef) model.Instruction
	OnCallEnded(ctx context.Context, callID string)
	Snapshot() []model.ConversationSnapshot
}

// AudioStore returns synthesized artifacts by ID
type AudioStore interface {
	Lookup(id string) (*model.AudioArtifact, bool)
}

const twimlContentType = "application/xml; charset=utf-8"

// terminalStatuses are the CallStatus values after which the call is gone
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

type voiceHandler struct {
	calls  CallHandler
	render twiml.RenderOptions
	log    zerolog.Logger
}

func newVoiceHandler(calls CallHandler, render twiml.RenderOptions, log zerolog.Logger) *voiceHandler {
	return &voiceHandler{
		calls:  calls,
		render: render,
		log:    log.With().Str("component", "voice-webhooks").Logger(),
	}
}

func (h *voiceHandler) register(group *gin.RouterGroup) {
	group.POST("/incoming", h.incoming)
	group.POST("/recording", h.recording)
	group.POST("/status", h.status)
}

// incoming answers a new call with the greeting
func (h *voiceHandler) incoming(c *gin.Context) {
	callID := c.PostForm("CallSid")
	if callID == "" {
		h.writeHangup(c, http.StatusBadRequest)
		return
	}
	instr := h.calls.OnCallStart(c.Request.Context(), callID, c.PostForm("From"))
	h.writeInstruction(c, callID, instr)
}

// recording receives the outcome of a capture. Twilio posts RecordingUrl when
// something was recorded; the redirect that follows <Record> posts without it.
func (h *voiceHandler) recording(c *gin.Context) {
	callID := c.PostForm("CallSid")
	if callID == "" {
		h.writeHangup(c, http.StatusBadRequest)
		return
	}
	audio := model.AudioRef{URL: strings.TrimSpace(c.PostForm("RecordingUrl"))}
	instr := h.calls.OnAudioCaptured(c.Request.Context(), callID, audio)
	h.writeInstruction(c, callID, instr)
}

// status receives call progress callbacks and ends calls that are over
func (h *voiceHandler) status(c *gin.Context) {
	callID := c.PostForm("CallSid")
	status := c.PostForm("CallStatus")
	if callID != "" && terminalStatuses[status] {
		h.calls.OnCallEnded(c.Request.Context(), callID)
		h.log.Debug().Str("call_id", callID).Str("status", status).Msg("call status")
	}
	c.Status(http.StatusNoContent)
}

func (h *voiceHandler) writeInstruction(c *gin.Context, callID string, instr model.Instruction) {
	doc, err := twiml.Render(instr, h.render)
	if err != nil {
		h.log.Error().Err(err).Str("call_id", callID).Msg("failed to render instruction, hanging up")
		doc = twiml.HangupDocument
	}
	c.Data(http.StatusOK, twimlContentType, []byte(doc))
}

func (h *voiceHandler) writeHangup(c *gin.Context, status int) {
	c.Data(status, twimlContentType, []byte(twiml.HangupDocument))
}

type audioHandler struct {
	store AudioStore
}

func newAudioHandler(store AudioStore) *audioHandler {
	return &audioHandler{store: store}
}

// serve plays back a synthesized artifact
func (h *audioHandler) serve(c *gin.Context) {
	if h.store == nil {
		c.Status(http.StatusNotFound)
		return
	}
	artifact, ok := h.store.Lookup(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.Header("Cache-Control", "public, max-age=86400, immutable")
	c.Data(http.StatusOK, contentType, artifact.Data)
}
