// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package metrics provides Prometheus metrics for the voice agent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveCalls tracks the number of conversations in the registry.
	ActiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voiceagent_active_calls",
			Help: "Number of calls currently held in the call registry",
		},
	)

	// CallsStarted tracks the total number of calls registered.
	CallsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voiceagent_calls_started_total",
			Help: "Total number of calls registered",
		},
	)

	// CallsEnded tracks calls removed from the registry, by reason.
	CallsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceagent_calls_ended_total",
			Help: "Total number of calls removed from the registry",
		},
		[]string{"reason"},
	)

	// StateTransitions tracks turn engine state changes.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceagent_state_transitions_total",
			Help: "Total number of turn engine state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// TurnOutcomes tracks how turns finished.
	TurnOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceagent_turn_outcomes_total",
			Help: "Total number of turns by outcome",
		},
		[]string{"outcome"},
	)

	// ExternalCallDuration tracks latency of recognition, response, synthesis and action calls.
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voiceagent_external_call_duration_seconds",
			Help:    "Duration of calls to external services",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "outcome"},
	)

	// ActionDispatches tracks action backend invocations.
	ActionDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceagent_action_dispatches_total",
			Help: "Total number of actions dispatched to the action backend",
		},
		[]string{"action", "success"},
	)

	// HTTPRequests tracks webhook and console requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceagent_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voiceagent_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// SynthesisCacheLookups tracks synthesis cache hits and misses.
	SynthesisCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceagent_synthesis_cache_lookups_total",
			Help: "Total number of synthesis cache lookups",
		},
		[]string{"result"},
	)
)

// RecordCallStarted increments call creation metrics.
func RecordCallStarted() {
	CallsStarted.Inc()
	ActiveCalls.Inc()
}

// RecordCallEnded increments call removal metrics.
func RecordCallEnded(reason string) {
	CallsEnded.WithLabelValues(reason).Inc()
	ActiveCalls.Dec()
}

// RecordStateTransition records a turn engine state change.
func RecordStateTransition(fromState, toState string) {
	StateTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordTurnOutcome records how a turn finished.
func RecordTurnOutcome(outcome string) {
	TurnOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveExternalCall records the latency of an external service call.
func ObserveExternalCall(service string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ExternalCallDuration.WithLabelValues(service, outcome).Observe(elapsed.Seconds())
}

// RecordActionDispatch records an action backend invocation.
func RecordActionDispatch(action string, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	ActionDispatches.WithLabelValues(action, label).Inc()
}

// RecordSynthesisCacheLookup records a synthesis cache hit or miss.
func RecordSynthesisCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	SynthesisCacheLookups.WithLabelValues(result).Inc()
}

// RecordRequest records an HTTP request.
func RecordRequest(method, endpoint, status string, duration float64) {
	HTTPRequests.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}
