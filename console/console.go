// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package console exposes the live conversations for inspection.
package console

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sprucehealth/voiceagent/model"
)

//go:embed templates/*.html
var content embed.FS

// SnapshotSource lists copies of the active conversations
type SnapshotSource interface {
	Snapshot() []model.ConversationSnapshot
}

// Console serves the call list and call detail pages and their JSON
type Console struct {
	source SnapshotSource
	tmpl   *template.Template
	base   string
}

// New parses the page templates
func New(source SnapshotSource) (*Console, error) {
	funcs := template.FuncMap{
		"json": func(v any) string {
			b, _ := json.MarshalIndent(v, "", "  ")
			return string(b)
		},
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Console{source: source, tmpl: tmpl}, nil
}

// Register mounts the console under group
func (cs *Console) Register(group *gin.RouterGroup) {
	cs.base = group.BasePath()
	group.GET("", cs.handleCalls)
	group.GET("/calls/:id", cs.handleCallDetail)
	group.GET("/api/calls", cs.handleCallsJSON)
	group.GET("/api/calls/:id", cs.handleCallJSON)
}

func (cs *Console) handleCalls(c *gin.Context) {
	cs.render(c, "calls.html", map[string]any{"Base": cs.base, "Calls": cs.source.Snapshot()})
}

func (cs *Console) handleCallDetail(c *gin.Context) {
	snap, ok := cs.find(c.Param("id"))
	if !ok {
		c.String(http.StatusNotFound, "call not found")
		return
	}
	cs.render(c, "call.html", map[string]any{"Base": cs.base, "Call": snap})
}

func (cs *Console) handleCallsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": cs.source.Snapshot()})
}

func (cs *Console) handleCallJSON(c *gin.Context) {
	snap, ok := cs.find(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (cs *Console) find(callID string) (model.ConversationSnapshot, bool) {
	for _, snap := range cs.source.Snapshot() {
		if snap.CallID == callID {
			return snap, true
		}
	}
	return model.ConversationSnapshot{}, false
}

func (cs *Console) render(c *gin.Context, name string, data any) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := cs.tmpl.ExecuteTemplate(c.Writer, name, data); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
	}
}
