// Package metrics holds the Prometheus collectors of the KT hub.
// Domain counters are fed from the event bus, so application code never
// imports Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/learnpro/kt-hub/internal/domain/shared"
	"github.com/learnpro/kt-hub/pkg/circuitbreaker"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	registry *prometheus.Registry

	// Event metrics
	EventsTotal *prometheus.CounterVec

	// Knowledge transfer metrics
	GiveSessionsCreated   prometheus.Counter
	GiveSessionsCompleted prometheus.Counter
	ReceiversFannedOut    prometheus.Counter
	ReceiveSessions       *prometheus.CounterVec
	SessionsDeleted       *prometheus.CounterVec

	// Learning metrics
	PathsGenerated *prometheus.CounterVec
	Assessments    *prometheus.CounterVec
	PathUpdates    prometheus.Counter

	// Adapter metrics
	AdapterRequests *prometheus.CounterVec
	AdapterLatency  *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kt_events_total",
				Help: "Domain events published, by type",
			},
			[]string{"type"},
		),

		GiveSessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "kt_give_sessions_created_total",
			Help: "Give sessions assigned",
		}),
		GiveSessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "kt_give_sessions_completed_total",
			Help: "Give sessions completed with a digest",
		}),
		ReceiversFannedOut: f.NewCounter(prometheus.CounterOpts{
			Name: "kt_receivers_fanned_out_total",
			Help: "Receive sessions moved to ReadyToConsume by fan-out",
		}),
		ReceiveSessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kt_receive_sessions_total",
				Help: "Receive session transitions, by resulting status",
			},
			[]string{"status"},
		),
		SessionsDeleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kt_sessions_deleted_total",
				Help: "Sessions deleted by admins, by direction",
			},
			[]string{"direction"},
		),

		PathsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_paths_generated_total",
				Help: "Learning paths stored, by whether the fallback path was used",
			},
			[]string{"fallback"},
		),
		Assessments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_assessments_total",
				Help: "Assessments scored, by outcome",
			},
			[]string{"outcome"},
		),
		PathUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "learning_path_updates_total",
			Help: "Patches applied to learning paths",
		}),

		AdapterRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kt_adapter_requests_total",
				Help: "External collaborator calls, by adapter and result",
			},
			[]string{"adapter", "result"},
		),
		AdapterLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kt_adapter_request_duration_seconds",
				Help:    "Latency of external collaborator calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"adapter"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kt_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"name"},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kt_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kt_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAdapter records one external call.
func (m *Metrics) ObserveAdapter(adapter string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			result = "rejected"
		}
	}
	m.AdapterRequests.WithLabelValues(adapter, result).Inc()
	m.AdapterLatency.WithLabelValues(adapter).Observe(d.Seconds())
}

// BreakerStateChanged matches the circuitbreaker state change callback.
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// HandleEvent is a shared.EventHandler; register it with SubscribeAll.
func (m *Metrics) HandleEvent(event shared.Event) error {
	m.EventsTotal.WithLabelValues(string(event.EventType())).Inc()

	switch e := event.(type) {
	case shared.GiveSessionCreatedEvent:
		m.GiveSessionsCreated.Inc()
	case shared.GiveSessionCompletedEvent:
		m.GiveSessionsCompleted.Inc()
	case shared.DigestFannedOutEvent:
		m.ReceiversFannedOut.Add(float64(len(e.ReceiveSessionIDs)))
	case shared.ReceiveSessionCreatedEvent:
		m.ReceiveSessions.WithLabelValues(e.Status).Inc()
	case shared.ReceiveSessionConsumedEvent:
		m.ReceiveSessions.WithLabelValues("Consumed").Inc()
	case shared.SessionDeletedEvent:
		m.SessionsDeleted.WithLabelValues(e.Direction).Inc()
	case shared.LearningPathGeneratedEvent:
		fallback := "false"
		if e.Fallback {
			fallback = "true"
		}
		m.PathsGenerated.WithLabelValues(fallback).Inc()
	case shared.AssessmentSubmittedEvent:
		outcome := "failed"
		if e.Passed {
			outcome = "passed"
		}
		m.Assessments.WithLabelValues(outcome).Inc()
	case shared.LearningPathUpdatedEvent:
		m.PathUpdates.Inc()
	}
	return nil
}
