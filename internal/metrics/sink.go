package metrics

import "time"

// Sink records engine metrics. All methods are fire-and-forget:
// implementations must not block or propagate errors into the execution
// loop.
type Sink interface {
	CampaignStarted()
	CampaignFinished(status string)
	ActiveCampaignsSet(n int)

	MessageSent()
	MessageFailed(category string)
	MessagesSkipped(n int)

	MessageDelayObserve(d time.Duration)
	RestObserve(d time.Duration)

	HealthCheck(level string)
	PublishError()
}
