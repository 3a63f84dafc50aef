// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reaper removes calls that outlived the configured age ceiling, for instance
// because the provider never delivered their end event.
type Reaper struct {
	engine     *Engine
	maxAge     time.Duration
	interval   time.Duration
	terminator CallTerminator
	log        zerolog.Logger
	done       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// ReaperOption configures a Reaper
type ReaperOption func(*Reaper)

// WithTerminator hangs up reaped calls at the telephony provider as well
func WithTerminator(t CallTerminator) ReaperOption {
	return func(r *Reaper) {
		r.terminator = t
	}
}

// WithReaperLogger sets the reaper logger
func WithReaperLogger(log zerolog.Logger) ReaperOption {
	return func(r *Reaper) {
		r.log = log.With().Str("component", "call-reaper").Logger()
	}
}

// NewReaper creates a reaper for the engine's registry
func NewReaper(e *Engine, maxAge, interval time.Duration, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		engine:   e,
		maxAge:   maxAge,
		interval: interval,
		log:      zerolog.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the sweep loop in background.
// Safe to call multiple times - only the first call starts the reaper.
func (r *Reaper) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run(ctx)
		r.log.Info().Dur("max_age", r.maxAge).Dur("interval", r.interval).Msg("call reaper started")
	})
}

// Stop shuts down the reaper and waits for a running sweep to finish.
// Safe to call multiple times.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.log.Info().Msg("call reaper stopped")
	})
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	clock := r.engine.Clock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-clock.After(r.interval):
			r.Sweep(ctx)
		}
	}
}

// Sweep ends every call older than the age ceiling and returns how many were
// removed. Each call is reaped under its turn lock, so an in-flight turn
// finishes first.
func (r *Reaper) Sweep(ctx context.Context) int {
	clock := r.engine.Clock()
	now := clock.Now()
	reaped := make([]string, 0)

	for _, conv := range r.engine.Registry().List() {
		if now.Sub(conv.CreatedAt) < r.maxAge {
			continue
		}
		conv.LockTurn()
		if !conv.Ended() {
			r.engine.end(conv, "expired")
			reaped = append(reaped, conv.CallID)
		}
		conv.UnlockTurn()
	}

	for _, callID := range reaped {
		r.log.Info().Str("call_id", callID).Dur("max_age", r.maxAge).Msg("call expired")
		if r.terminator == nil {
			continue
		}
		if err := r.terminator.Hangup(ctx, callID); err != nil {
			r.log.Warn().Err(err).Str("call_id", callID).Msg("failed to hang up expired call")
		}
	}

	// Tombstones only need to outlive late provider callbacks
	if pruned := r.engine.Registry().PruneEnded(now.Add(-r.maxAge)); pruned > 0 {
		r.log.Debug().Int("pruned", pruned).Msg("forgot ended calls")
	}
	return len(reaped)
}
