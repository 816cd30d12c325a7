package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns a private registry. A nil *Manager is valid and records nothing.
type Manager struct {
	registry *prometheus.Registry

	validations   *prometheus.CounterVec
	issuances     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	reconciled    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_validations_total",
			Help: "License validation attempts by outcome code",
		}, []string{"outcome"}),
		issuances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_issuances_total",
			Help: "Issuance pipeline runs by mode and outcome",
		}, []string{"mode", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_notifications_total",
			Help: "License delivery emails by result",
		}, []string{"delivered"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_reconciliations_total",
			Help: "Stale pending orders examined by the reconciler, by result",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(m.validations, m.issuances, m.notifications, m.reconciled, m.httpDuration)
	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) ObserveValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Manager) ObserveIssuance(mode, outcome string) {
	if m == nil {
		return
	}
	m.issuances.WithLabelValues(mode, outcome).Inc()
}

func (m *Manager) ObserveNotification(delivered bool) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(strconv.FormatBool(delivered)).Inc()
}

func (m *Manager) ObserveReconcile(result string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(result).Inc()
}

func (m *Manager) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
