// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignStatusIdle      CampaignStatus = "idle"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusStopped   CampaignStatus = "stopped"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusError     CampaignStatus = "error"
)

// Terminal reports whether no further execution is possible without
// operator intervention.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusStopped || s == CampaignStatusCompleted || s == CampaignStatusError
}

type Campaign struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	OwnerRef      string         `db:"owner_ref" json:"owner_ref"`
	SenderRef     string         `db:"sender_ref" json:"sender_ref"`
	Status        CampaignStatus `db:"status" json:"status"`
	TotalCount    int            `db:"total_count" json:"total_count"`
	CurrentIndex  int            `db:"current_index" json:"current_index"`
	SentCount     int            `db:"sent_count" json:"sent_count"`
	FailedCount   int            `db:"failed_count" json:"failed_count"`
	SkippedCount  int            `db:"skipped_count" json:"skipped_count"`
	Config        CampaignConfig `db:"config" json:"config"`
	LastRecipient string         `db:"last_recipient" json:"last_recipient,omitempty"`
	LastSentAt    *time.Time     `db:"last_sent_at" json:"last_sent_at,omitempty"`
	ErrorReason   string         `db:"error_reason" json:"error_reason,omitempty"`
	StopReason    string         `db:"stop_reason" json:"stop_reason,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	StartedAt     *time.Time     `db:"started_at" json:"started_at,omitempty"`
	PausedAt      *time.Time     `db:"paused_at" json:"paused_at,omitempty"`
	ResumedAt     *time.Time     `db:"resumed_at" json:"resumed_at,omitempty"`
	StoppedAt     *time.Time     `db:"stopped_at" json:"stopped_at,omitempty"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt     *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
