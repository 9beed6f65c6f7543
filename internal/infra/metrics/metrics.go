// Package metrics exposes Prometheus counters for the authentication flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rssauth"

// Outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeConflict           = "conflict"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeMissing            = "missing"
	OutcomeMalformed          = "malformed"
	OutcomeInvalidSignature   = "invalid_signature"
	OutcomeExpired            = "expired"
	OutcomeError              = "error"
)

// Recorder counts flow outcomes. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	hashDuration  prometheus.Histogram
}

// NewRecorder registers the collectors on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Bearer token checks by outcome.",
		}, []string{"outcome"}),
		hashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "password_hash_seconds",
			Help:      "Time spent hashing or comparing passwords.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}

	r.registry.MustRegister(
		r.registrations,
		r.logins,
		r.verifications,
		r.hashDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Registration counts one registration attempt.
func (r *Recorder) Registration(outcome string) {
	if r == nil {
		return
	}
	r.registrations.WithLabelValues(outcome).Inc()
}

// Login counts one login attempt.
func (r *Recorder) Login(outcome string) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(outcome).Inc()
}

// Verification counts one token check.
func (r *Recorder) Verification(outcome string) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(outcome).Inc()
}

// ObserveHash records how long a hash or comparison took, in seconds.
func (r *Recorder) ObserveHash(seconds float64) {
	if r == nil {
		return
	}
	r.hashDuration.Observe(seconds)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
