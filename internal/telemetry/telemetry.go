// Package telemetry exposes the engine's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answers_queries_total",
		Help: "Queries processed, by vertical and grounding decision.",
	}, []string{"vertical", "grounding"})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "answers_query_duration_seconds",
		Help:    "End to end query processing time.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	StepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answers_step_failures_total",
		Help: "Plan steps that failed or timed out, by capability.",
	}, []string{"capability"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answers_llm_calls_total",
		Help: "LLM provider calls, by operation and outcome.",
	}, []string{"op", "outcome"})

	StreamSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "answers_stream_sessions_active",
		Help: "Streaming sessions currently held in the cache.",
	})
)
