// Package metrics exposes Prometheus counters for account operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	Logins         *prometheus.CounterVec
	PasswordResets *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
	SweptAccounts  prometheus.Counter
	SweepFailures  prometheus.Counter

	registry *prometheus.Registry
}

// New creates the counters on a fresh registry that also carries the Go and
// process collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := NewWithRegisterer(registry)
	m.registry = registry
	return m
}

// NewWithRegisterer creates the counters and registers them with reg
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_registrations_total",
				Help: "Registration attempts by verification method and outcome",
			},
			[]string{"method", "outcome"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_verifications_total",
				Help: "One-time code submissions by outcome",
			},
			[]string{"outcome"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		PasswordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_password_resets_total",
				Help: "Password reset requests and completions by outcome",
			},
			[]string{"stage", "outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_notifications_total",
				Help: "Notification dispatches by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		SweptAccounts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_sweeper_deleted_total",
			Help: "Unverified accounts removed by the sweeper",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "account_sweeper_failures_total",
			Help: "Sweeper cycles that failed",
		}),
	}

	reg.MustRegister(
		m.Registrations,
		m.Verifications,
		m.Logins,
		m.PasswordResets,
		m.Notifications,
		m.SweptAccounts,
		m.SweepFailures,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRegistration(method, outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// ObservePasswordReset records a reset step; stage is "request" or "complete"
func (m *Metrics) ObservePasswordReset(stage, outcome string) {
	if m == nil {
		return
	}
	m.PasswordResets.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveNotification(channel, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}

// ObserveSweep records one sweeper cycle
func (m *Metrics) ObserveSweep(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SweepFailures.Inc()
		return
	}
	m.SweptAccounts.Add(float64(deleted))
}
