// Package metrics exposes Prometheus instrumentation for mailsmith.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the process-wide collectors.
type Metrics struct {
	GuardDecisions     *prometheus.CounterVec
	Extractions        *prometheus.CounterVec
	DraftsStored       prometheus.Counter
	DraftsDeduplicated prometheus.Counter
	GatewayRequests    *prometheus.CounterVec
	GatewayDuration    *prometheus.HistogramVec
	ToolCalls          *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	SessionsSwept      prometheus.Counter
	RateLimited        prometheus.Counter
}

// Get returns the global metrics, registering them on first use.
//
// Metrics:
//   - mailsmith_guard_decisions_total{form,kind}
//   - mailsmith_extractions_total{method}
//   - mailsmith_drafts_stored_total
//   - mailsmith_drafts_deduplicated_total
//   - mailsmith_gateway_requests_total{provider,mode,outcome}
//   - mailsmith_gateway_duration_seconds{provider,mode}
//   - mailsmith_tool_calls_total{tool}
//   - mailsmith_active_sessions
//   - mailsmith_sessions_swept_total
//   - mailsmith_rate_limited_total
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{
			GuardDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailsmith_guard_decisions_total",
				Help: "Guard decisions by input form and outcome kind",
			}, []string{"form", "kind"}),
			Extractions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailsmith_extractions_total",
				Help: "Email extraction attempts by matching method",
			}, []string{"method"}),
			DraftsStored: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailsmith_drafts_stored_total",
				Help: "Drafts appended to a session",
			}),
			DraftsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailsmith_drafts_deduplicated_total",
				Help: "Drafts dropped because an identical one already existed",
			}),
			GatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailsmith_gateway_requests_total",
				Help: "Model gateway calls by provider, mode and outcome",
			}, []string{"provider", "mode", "outcome"}),
			GatewayDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "mailsmith_gateway_duration_seconds",
				Help:    "Model gateway call duration",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			}, []string{"provider", "mode"}),
			ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mailsmith_tool_calls_total",
				Help: "Tool calls executed for the model",
			}, []string{"tool"}),
			ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mailsmith_active_sessions",
				Help: "Sessions currently held in the draft arena",
			}),
			SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailsmith_sessions_swept_total",
				Help: "Sessions torn down by the idle sweeper",
			}),
			RateLimited: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mailsmith_rate_limited_total",
				Help: "Chat requests rejected by the rate limiter",
			}),
		}
	})
	return global
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
