// Package metrics exports authentication counters and HTTP latency over
// Prometheus. All collectors live on an owned registry so tests can run
// many instances side by side.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthMetrics holds the service's Prometheus collectors.
type AuthMetrics struct {
	loginSuccess       prometheus.Counter
	loginFailure       prometheus.Counter
	tokenRefresh       prometheus.Counter
	userRegistration   prometheus.Counter
	bruteforceDetected prometheus.Counter
	sessionRevoked     prometheus.Counter
	rotationFailed     prometheus.Counter
	userLocked         prometheus.Counter
	refreshReused      prometheus.Counter
	passwordChange     prometheus.Counter

	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates the collectors on a fresh registry.
func New(namespace string) *AuthMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method and status",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route", "method", "status"},
	)
	registry.MustRegister(httpDuration)

	return &AuthMetrics{
		loginSuccess:       counter("login_success_total", "Successful logins"),
		loginFailure:       counter("login_failure_total", "Failed login attempts"),
		tokenRefresh:       counter("token_refresh_total", "Successful token refreshes"),
		userRegistration:   counter("user_registration_total", "New user registrations"),
		bruteforceDetected: counter("bruteforce_detected_total", "Login attempts denied by the rate limiter"),
		sessionRevoked:     counter("session_revoked_total", "Sessions revoked by logout or administrative action"),
		rotationFailed:     counter("rotation_failed_total", "Refresh rotations that failed after validation"),
		userLocked:         counter("user_locked_total", "Logins rejected because the account was locked"),
		refreshReused:      counter("refresh_reused_total", "Refresh token reuse detections"),
		passwordChange:     counter("password_change_total", "Completed password changes"),
		httpDuration:       httpDuration,
		registry:           registry,
	}
}

func (m *AuthMetrics) LoginSuccess()       { m.loginSuccess.Inc() }
func (m *AuthMetrics) LoginFailure()       { m.loginFailure.Inc() }
func (m *AuthMetrics) TokenRefresh()       { m.tokenRefresh.Inc() }
func (m *AuthMetrics) UserRegistration()   { m.userRegistration.Inc() }
func (m *AuthMetrics) BruteforceDetected() { m.bruteforceDetected.Inc() }
func (m *AuthMetrics) SessionRevoked()     { m.sessionRevoked.Inc() }
func (m *AuthMetrics) RotationFailed()     { m.rotationFailed.Inc() }
func (m *AuthMetrics) UserLocked()         { m.userLocked.Inc() }
func (m *AuthMetrics) RefreshReused()      { m.refreshReused.Inc() }
func (m *AuthMetrics) PasswordChange()     { m.passwordChange.Inc() }

// ObserveHTTP records one request's latency.
func (m *AuthMetrics) ObserveHTTP(route, method, status string, d time.Duration) {
	m.httpDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}

// Handler exposes the registry for scraping.
func (m *AuthMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *AuthMetrics) Registry() *prometheus.Registry {
	return m.registry
}
