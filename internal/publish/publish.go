// Package publish fans campaign progress and notifications out to
// external observers. Publishing is fire-and-forget: a broken broker must
// never affect campaign execution.
package publish

import "time"

// Snapshot is the progress view pushed to observers.
type Snapshot struct {
	CampaignID    string     `json:"campaign_id"`
	Status        string     `json:"status"`
	TotalCount    int        `json:"total_count"`
	CurrentIndex  int        `json:"current_index"`
	SentCount     int        `json:"sent_count"`
	FailedCount   int        `json:"failed_count"`
	SkippedCount  int        `json:"skipped_count"`
	LastRecipient string     `json:"last_recipient,omitempty"`
	LastSentAt    *time.Time `json:"last_sent_at,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

type Publisher interface {
	PublishProgress(campaignID string, snap Snapshot)
	PublishNotification(kind, title, body, scope string)
}

// NoopPublisher drops everything; used in tests and when no broker is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishProgress(string, Snapshot)                   {}
func (NoopPublisher) PublishNotification(string, string, string, string) {}

var _ Publisher = NoopPublisher{}
