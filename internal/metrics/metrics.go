package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_observations_total", Help: "Normalized observations appended per asset"},
		[]string{"asset", "origin"},
	)
	DroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_dropped_frames_total", Help: "Inbound frames dropped (malformed or stale)"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Push transport reconnect attempts scheduled"},
	)
	PollFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_poll_fetches_total", Help: "Fallback poll fetches per outcome"},
		[]string{"outcome"},
	)
	AlertsFiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "alerts_fired_total", Help: "One-shot alert rules fired"},
	)
)

func init() {
	prometheus.MustRegister(ObservationsTotal, DroppedFramesTotal, ReconnectsTotal, PollFetchesTotal, AlertsFiredTotal)
}

// Serve exposes /metrics on addr and returns the server for shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
