// Package metrics defines the portal's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Registrations        *prometheus.CounterVec
	AllocationFailures   *prometheus.CounterVec
	PaymentVerifications *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
	AdmitCardEmails      *prometheus.CounterVec
	ReconciledOrders     *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registrations accepted, by union.",
		}, []string{"union"}),
		AllocationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_failures_total",
			Help:      "Registrations rejected because a pool was exhausted.",
		}, []string{"pool"}),
		PaymentVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Checkout verifications, by outcome.",
		}, []string{"result"}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_events_total",
			Help:      "Payment provider webhook events, by type and outcome.",
		}, []string{"event", "result"}),
		AdmitCardEmails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admit_card_emails_total",
			Help:      "Admit card email jobs dispatched, by outcome.",
		}, []string{"result"}),
		ReconciledOrders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_orders_total",
			Help:      "Unpaid orders checked by reconciliation, by outcome.",
		}, []string{"result"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncRegistration counts an accepted registration.
func (m *Metrics) IncRegistration(union string) {
	if m != nil {
		m.Registrations.WithLabelValues(union).Inc()
	}
}

// IncAllocationFailure counts an exhausted pool ("centers" or "shifts").
func (m *Metrics) IncAllocationFailure(pool string) {
	if m != nil {
		m.AllocationFailures.WithLabelValues(pool).Inc()
	}
}

// IncPaymentVerification counts a verification outcome.
func (m *Metrics) IncPaymentVerification(result string) {
	if m != nil {
		m.PaymentVerifications.WithLabelValues(result).Inc()
	}
}

// IncWebhookEvent counts a webhook delivery.
func (m *Metrics) IncWebhookEvent(event, result string) {
	if m != nil {
		m.WebhookEvents.WithLabelValues(event, result).Inc()
	}
}

// IncAdmitCardEmail counts an email dispatch outcome.
func (m *Metrics) IncAdmitCardEmail(result string) {
	if m != nil {
		m.AdmitCardEmails.WithLabelValues(result).Inc()
	}
}

// IncReconciledOrder counts one reconciled order.
func (m *Metrics) IncReconciledOrder(result string) {
	if m != nil {
		m.ReconciledOrders.WithLabelValues(result).Inc()
	}
}

// Middleware observes request latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.RequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}
