// internal/model/queue_item.go
package model

import "time"

type QueueItemStatus string

const (
	QueueItemStatusPending    QueueItemStatus = "pending"
	QueueItemStatusProcessing QueueItemStatus = "processing"
	QueueItemStatusSent       QueueItemStatus = "sent"
	QueueItemStatusFailed     QueueItemStatus = "failed"
	QueueItemStatusSkipped    QueueItemStatus = "skipped"
)

type QueueItem struct {
	ID            string          `db:"id" json:"id"`
	CampaignID    string          `db:"campaign_id" json:"campaign_id"`
	SequenceIndex int             `db:"sequence_index" json:"sequence_index"`
	RecipientRef  string          `db:"recipient_ref" json:"recipient_ref"`
	Payload       string          `db:"payload" json:"payload"`
	Status        QueueItemStatus `db:"status" json:"status"`
	ErrorDetail   string          `db:"error_detail" json:"error_detail,omitempty"`
	SentAt        *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}
