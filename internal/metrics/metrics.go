// Package metrics exposes Anna's Prometheus instrumentation. Every counter,
// histogram, and gauge here corresponds to a component the daemon actually
// drives; nothing is registered speculatively.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Orchestrator metrics
	OrchestratorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_orchestrator_requests_total",
			Help: "Total number of orchestrator requests by outcome",
		},
		[]string{"target", "outcome"}, // outcome: answered/fallback/clarification/error
	)

	OrchestratorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_orchestrator_retries_total",
			Help: "Total number of retry attempts triggered by low reliability or invention",
		},
		[]string{"reason"}, // reason: invention/low_reliability/tool_failure
	)

	OrchestratorReliability = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anna_orchestrator_reliability",
			Help:    "Distribution of reliability scores returned to callers",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0..100 in steps of 10
		},
	)

	OrchestratorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anna_orchestrator_request_duration_seconds",
			Help:    "End-to-end orchestrator request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"target"},
	)

	// Guard metrics
	GuardInventionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anna_guard_invention_total",
			Help: "Total number of answers rejected for citing an unverifiable claim",
		},
	)

	GuardClaimsChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_guard_claims_checked_total",
			Help: "Total number of claims checked against evidence, by verdict",
		},
		[]string{"verdict"}, // verdict: verified/contradicted/unverifiable
	)

	// Mutation Engine metrics
	MutationExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_mutation_executions_total",
			Help: "Total number of append-line mutations attempted",
		},
		[]string{"sandbox_class", "success"},
	)

	MutationsRolledBack = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anna_mutations_rolled_back_total",
			Help: "Total number of mutations reverted via the rollback log",
		},
	)

	// Fix-It metrics
	FixItSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_fixit_sessions_total",
			Help: "Total number of Fix-It sessions by terminal state",
		},
		[]string{"category", "final_state"}, // final_state: completed/stuck/failed
	)

	FixItHypothesisCycles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anna_fixit_hypothesis_cycles",
			Help:    "Number of hypothesis cycles consumed per Fix-It session",
			Buckets: prometheus.LinearBuckets(0, 1, 4),
		},
	)

	// Recipe Engine metrics
	RecipeCoverage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anna_recipe_coverage_ratio",
			Help: "Rolling ratio of requests served by a matched recipe versus full orchestration",
		},
	)

	RecipeMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_recipe_matches_total",
			Help: "Total number of recipe match attempts by outcome",
		},
		[]string{"outcome"}, // outcome: matched/created/demoted/no_match
	)

	// Tool Catalog metrics
	ToolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_tool_executions_total",
			Help: "Total number of tool catalog executions by tool and exit status",
		},
		[]string{"tool", "status"}, // status: ok/failed/unknown
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anna_tool_execution_duration_seconds",
			Help:    "Tool execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"tool"},
	)

	// RPC server metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_rpc_requests_total",
			Help: "Total number of JSON-RPC requests handled, by method and outcome",
		},
		[]string{"method", "outcome"}, // outcome: ok/error
	)

	RPCConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anna_rpc_connections_active",
			Help: "Current number of open unix-socket client connections",
		},
	)

	RPCStreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anna_rpc_stream_subscribers",
			Help: "Current number of live Fix-It/investigation stream subscribers",
		},
	)

	// LLM client metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anna_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"provider", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anna_llm_request_duration_seconds",
			Help:    "LLM completion request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider"},
	)
)
