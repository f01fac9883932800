// Package telemetry holds the process-wide Prometheus collectors and the
// OpenTelemetry tracer used by the gateway.
//
// Collectors register with the default registry at init; Handler serves
// them. Tracing is a no-op until Setup installs a provider.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nvimcp"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// RPCCalls counts msgpack-rpc requests by method and outcome.
	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "msgpack-rpc requests sent to Neovim.",
	}, []string{"method", "outcome"})

	// RPCInflight is the number of requests awaiting a response.
	RPCInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "inflight",
		Help:      "msgpack-rpc requests awaiting a response.",
	})

	// NotificationsDropped counts notifications discarded because the
	// subscriber's buffer was full.
	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped because a subscriber was not keeping up.",
	}, []string{"method"})

	// ConnectionsActive is the number of live editor connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Live Neovim connections.",
	})

	// ToolCalls counts MCP tool invocations.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "MCP tool invocations by tool, registry kind and outcome.",
	}, []string{"tool", "kind", "outcome"})

	// DynamicTools is the number of registered (tool, connection) pairs.
	DynamicTools = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "dynamic",
		Help:      "Registered connection-scoped tools.",
	})
)

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
