package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "craftd",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server spawns.",
		}, []string{"name"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "craftd",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of observed server exits.",
		}, []string{"name"},
	)
	serverKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "craftd",
			Subsystem: "server",
			Name:      "kills_total",
			Help:      "Number of force-kill requests issued.",
		}, []string{"name"},
	)
	consoleLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "craftd",
			Subsystem: "console",
			Name:      "lines_total",
			Help:      "Cleaned console lines read from child output.",
		}, []string{"name"},
	)
	logBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "craftd",
			Subsystem: "console",
			Name:      "batches_total",
			Help:      "Log batches emitted to subscribers.",
		}, []string{"name"},
	)
	logRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "craftd",
			Subsystem: "console",
			Name:      "rotations_total",
			Help:      "Console log file rotations.",
		}, []string{"name"},
	)
	webClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "craftd",
			Subsystem: "events",
			Name:      "web_clients",
			Help:      "Currently connected web socket clients.",
		},
	)
	pluginConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "craftd",
			Subsystem: "events",
			Name:      "plugin_connections",
			Help:      "Currently connected companion plugin sockets.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverKills, consoleLines, logBatches, logRotations, webClients, pluginConns}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}
func IncStop(name string) {
	if regOK.Load() {
		serverStops.WithLabelValues(name).Inc()
	}
}
func IncKill(name string) {
	if regOK.Load() {
		serverKills.WithLabelValues(name).Inc()
	}
}
func AddConsoleLines(name string, n int) {
	if regOK.Load() && n > 0 {
		consoleLines.WithLabelValues(name).Add(float64(n))
	}
}
func IncLogBatch(name string) {
	if regOK.Load() {
		logBatches.WithLabelValues(name).Inc()
	}
}
func IncLogRotation(name string) {
	if regOK.Load() {
		logRotations.WithLabelValues(name).Inc()
	}
}
func AddWebClients(delta int) {
	if regOK.Load() {
		webClients.Add(float64(delta))
	}
}
func AddPluginConns(delta int) {
	if regOK.Load() {
		pluginConns.Add(float64(delta))
	}
}
