package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking.
type PrometheusSink struct {
	campaignsStartedTotal  prometheus.Counter
	campaignsFinishedTotal *prometheus.CounterVec
	activeCampaigns        prometheus.Gauge

	messagesSentTotal    prometheus.Counter
	messagesFailedTotal  *prometheus.CounterVec
	messagesSkippedTotal prometheus.Counter

	messageDelay prometheus.Histogram
	restDuration prometheus.Histogram

	healthChecksTotal  *prometheus.CounterVec
	publishErrorsTotal prometheus.Counter
}

// NewPrometheusSink creates and registers the engine's collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		campaignsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dripsend_campaigns_started_total",
			Help: "Total number of campaign execution loops started.",
		}),
		campaignsFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dripsend_campaigns_finished_total",
			Help: "Total number of campaign loops finished, by terminal status.",
		}, []string{"status"}),
		activeCampaigns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dripsend_active_campaigns",
			Help: "Number of campaigns with a live execution loop.",
		}),
		messagesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dripsend_messages_sent_total",
			Help: "Total messages delivered successfully.",
		}),
		messagesFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dripsend_messages_failed_total",
			Help: "Total per-recipient send failures, by error category.",
		}, []string{"category"}),
		messagesSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dripsend_messages_skipped_total",
			Help: "Total messages skipped by operator stop.",
		}),
		messageDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dripsend_message_delay_seconds",
			Help:    "Inter-message pacing delays.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		restDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dripsend_rest_duration_seconds",
			Help:    "Rest-period durations.",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8),
		}),
		healthChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dripsend_health_checks_total",
			Help: "Health governor checks, by resulting level.",
		}, []string{"level"}),
		publishErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dripsend_publish_errors_total",
			Help: "Progress/notification publish failures (fire-and-forget).",
		}),
	}

	reg.MustRegister(
		s.campaignsStartedTotal, s.campaignsFinishedTotal, s.activeCampaigns,
		s.messagesSentTotal, s.messagesFailedTotal, s.messagesSkippedTotal,
		s.messageDelay, s.restDuration, s.healthChecksTotal, s.publishErrorsTotal,
	)
	return s
}

func (s *PrometheusSink) CampaignStarted() { s.campaignsStartedTotal.Inc() }
func (s *PrometheusSink) CampaignFinished(status string) {
	s.campaignsFinishedTotal.WithLabelValues(status).Inc()
}
func (s *PrometheusSink) ActiveCampaignsSet(n int) { s.activeCampaigns.Set(float64(n)) }
func (s *PrometheusSink) MessageSent()             { s.messagesSentTotal.Inc() }
func (s *PrometheusSink) MessageFailed(category string) {
	s.messagesFailedTotal.WithLabelValues(category).Inc()
}
func (s *PrometheusSink) MessagesSkipped(n int) { s.messagesSkippedTotal.Add(float64(n)) }
func (s *PrometheusSink) MessageDelayObserve(d time.Duration) {
	s.messageDelay.Observe(d.Seconds())
}
func (s *PrometheusSink) RestObserve(d time.Duration) { s.restDuration.Observe(d.Seconds()) }
func (s *PrometheusSink) HealthCheck(level string) {
	s.healthChecksTotal.WithLabelValues(level).Inc()
}
func (s *PrometheusSink) PublishError() { s.publishErrorsTotal.Inc() }

var _ Sink = (*PrometheusSink)(nil)
