// Package metrics exports reconciliation counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/beekhof/mail-invites/internal/invite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invites"

// Recorder implements invite.Recorder with Prometheus counters.
type Recorder struct {
	PassesTotal      *prometheus.CounterVec
	FetchDowngrades  *prometheus.CounterVec
	WritesTotal      *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	StalePassesTotal prometheus.Counter
}

var _ invite.Recorder = (*Recorder)(nil)

// NewRecorder registers the counters with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		PassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by method and outcome.",
		}, []string{"method", "outcome"}),
		FetchDowngrades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_downgrades_total",
			Help:      "Stored-event lookups that failed and were treated as not found.",
		}, []string{"method"}),
		WritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Events written to the calendar store by method.",
		}, []string{"method"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Invitation errors by method and kind.",
		}, []string{"method", "kind"}),
		StalePassesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_passes_dropped_total",
			Help:      "Pass results discarded because a newer pass or close superseded them.",
		}),
	}
}

func label(m invite.Method) string {
	if m == "" {
		return "none"
	}
	return string(m)
}

// FetchDowngraded counts a store lookup that failed and was treated as
// "not found".
func (r *Recorder) FetchDowngraded(method invite.Method) {
	r.FetchDowngrades.WithLabelValues(label(method)).Inc()
}

// Persisted counts a successful write to the calendar store.
func (r *Recorder) Persisted(method invite.Method) {
	r.WritesTotal.WithLabelValues(label(method)).Inc()
}

// Failed counts an error captured into a model, by method and kind.
func (r *Recorder) Failed(method invite.Method, kind invite.ErrorKind) {
	r.ErrorsTotal.WithLabelValues(label(method), kind.String()).Inc()
}

// PassFinished counts a finished reconciliation pass with its outcome.
func (r *Recorder) PassFinished(method invite.Method, outcome string) {
	r.PassesTotal.WithLabelValues(label(method), outcome).Inc()
}

// StalePassDropped counts a pass result discarded because a newer pass
// had started.
func (r *Recorder) StalePassDropped() {
	r.StalePassesTotal.Inc()
}

// ParseFailed counts a message whose calendar payload could not be parsed.
func (r *Recorder) ParseFailed() {
	r.ErrorsTotal.WithLabelValues(label(""), invite.ParsingError.String()).Inc()
}

// Serve exposes the registry on addr under /metrics until the listener
// fails. It returns once the listener is bound.
func Serve(addr string, gatherer prometheus.Gatherer) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Warning: metrics server stopped: %v", err)
		}
	}()
	log.Printf("Serving metrics on http://%s/metrics", listener.Addr())
	return server, nil
}
