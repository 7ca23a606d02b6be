package metrics

import "time"

// NoopSink discards all metrics. Used in tests and when metrics are
// disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (*NoopSink) CampaignStarted()                  {}
func (*NoopSink) CampaignFinished(status string)    {}
func (*NoopSink) ActiveCampaignsSet(n int)          {}
func (*NoopSink) MessageSent()                      {}
func (*NoopSink) MessageFailed(category string)     {}
func (*NoopSink) MessagesSkipped(n int)             {}
func (*NoopSink) MessageDelayObserve(time.Duration) {}
func (*NoopSink) RestObserve(time.Duration)         {}
func (*NoopSink) HealthCheck(level string)          {}
func (*NoopSink) PublishError()                     {}

var _ Sink = (*NoopSink)(nil)
