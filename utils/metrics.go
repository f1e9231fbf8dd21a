package utils

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "buddiepay"

// Metrics содержит коллекторы Prometheus приложения
type Metrics struct {
	Notifications      *prometheus.CounterVec
	SchedulerRuns      *prometheus.CounterVec
	SchedulerItems     *prometheus.CounterVec
	SchedulerDuration  *prometheus.HistogramVec
	WebhookEvents      *prometheus.CounterVec
	PaymentInitiations *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	Errors             *prometheus.CounterVec
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик, регистрируя его при первом вызове
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_total",
				Help:      "Notification attempts by type, channel and outcome.",
			}, []string{"type", "channel", "status"}),
			SchedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "scheduler_runs_total",
				Help:      "Scheduled job runs by job and outcome.",
			}, []string{"job", "outcome"}),
			SchedulerItems: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "scheduler_items_total",
				Help:      "Debts processed by scheduled jobs by outcome.",
			}, []string{"job", "outcome"}),
			SchedulerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "scheduler_run_duration_seconds",
				Help:      "Duration of scheduled job runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"job"}),
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_events_total",
				Help:      "Provider webhook events by provider and outcome.",
			}, []string{"provider", "outcome"}),
			PaymentInitiations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "payment_initiations_total",
				Help:      "Payment initiations by provider and status.",
			}, []string{"provider", "status"}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of payment provider API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"provider", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "errors_total",
				Help:      "Errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metrics.Notifications,
			metrics.SchedulerRuns,
			metrics.SchedulerItems,
			metrics.SchedulerDuration,
			metrics.WebhookEvents,
			metrics.PaymentInitiations,
			metrics.ProviderLatency,
			metrics.Errors,
		)
	})
	return metrics
}

// RecordError увеличивает счетчик ошибок компонента
func (m *Metrics) RecordError(component string) {
	m.Errors.WithLabelValues(component).Inc()
}
