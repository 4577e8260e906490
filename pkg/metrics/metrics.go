// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "datagenie_build_info", Help: "Build information of the running binary.",
	}, []string{"version"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_http_requests_total", Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "datagenie_http_request_duration_seconds", Help: "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	TenantPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "datagenie_tenant_pools", Help: "Open tenant connection pools.",
	})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "datagenie_schema_sync_duration_seconds", Help: "Schema sync pass latency by result.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"result"})
	SyncChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_schema_sync_changes_total", Help: "Mirror rows touched by sync, by level and change kind.",
	}, []string{"level", "change"})
	SyncWriteConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagenie_schema_sync_write_conflict_retries_total", Help: "Sync attempts retried after a lock conflict.",
	})

	SchemaCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_schema_cache_lookups_total", Help: "Formatted schema cache lookups by result.",
	}, []string{"result"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "datagenie_llm_request_duration_seconds", Help: "Language model call latency.",
		Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"provider", "purpose", "result"})
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_llm_tokens_total", Help: "Tokens consumed by kind.",
	}, []string{"provider", "kind"})

	ClassifierFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagenie_classifier_fail_open_total", Help: "Classifications that fell back to the conservative default.",
	})
	GenerationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_generation_outcomes_total", Help: "Terminal states of generation requests.",
	}, []string{"outcome"})
	RepairAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagenie_generation_repair_attempts_total", Help: "Repair prompts sent after a failed plan check.",
	})
	BlockedQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_blocked_queries_total", Help: "Statements refused by the mutation gate, by stage and keyword.",
	}, []string{"stage", "keyword"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagenie_executions_total", Help: "Execution gateway results.",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
