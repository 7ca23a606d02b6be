package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/dripsend-backend/internal/errors"
	"github.com/unclebandit/dripsend-backend/internal/model"
)

// Progress is the batched counter flush written by the execution loop.
type Progress struct {
	CurrentIndex  int
	SentCount     int
	FailedCount   int
	SkippedCount  int
	LastRecipient string
	LastSentAt    *time.Time
}

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	ListByStatus(statuses ...model.CampaignStatus) ([]*model.Campaign, error)
	UpdateStatus(id string, status model.CampaignStatus) error
	SetStopped(id, reason string) error
	SetError(id, reason string) error
	UpdateProgress(id string, p Progress) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, owner_ref, sender_ref, status, total_count, current_index,
        sent_count, failed_count, skipped_count, config, last_recipient, last_sent_at,
        error_reason, stop_reason, created_at, started_at, paused_at, resumed_at,
        stopped_at, completed_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusIdle
	}
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	query := `
        INSERT INTO campaigns (id, name, owner_ref, sender_ref, status, total_count, config, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = r.DB.Exec(query, c.ID, c.Name, c.OwnerRef, c.SenderRef, c.Status, c.TotalCount, cfg, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ListByStatus is used by crash recovery to find campaigns that were live
// when the process last exited.
func (r *CampaignRepository) ListByStatus(statuses ...model.CampaignStatus) ([]*model.Campaign, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status IN (`
	args := []interface{}{}
	for i, s := range statuses {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("$%d", i+1)
		args = append(args, s)
	}
	query += `) ORDER BY created_at`

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// UpdateStatus sets the status plus the timestamp column that records the
// transition (started_at for running, paused_at for paused, and so on).
func (r *CampaignRepository) UpdateStatus(id string, status model.CampaignStatus) error {
	tsColumn := ""
	switch status {
	case model.CampaignStatusRunning:
		// started_at only on the first transition; resumed_at afterwards
		tsColumn = "started_at=COALESCE(started_at, NOW()), resumed_at=CASE WHEN started_at IS NULL THEN resumed_at ELSE NOW() END"
	case model.CampaignStatusPaused:
		tsColumn = "paused_at=NOW()"
	case model.CampaignStatusStopped:
		tsColumn = "stopped_at=NOW()"
	case model.CampaignStatusCompleted:
		tsColumn = "completed_at=NOW()"
	}
	query := `UPDATE campaigns SET status=$1, updated_at=NOW()`
	if tsColumn != "" {
		query += ", " + tsColumn
	}
	query += ` WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

func (r *CampaignRepository) SetStopped(id, reason string) error {
	query := `UPDATE campaigns SET status=$1, stop_reason=$2, stopped_at=NOW(), updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.CampaignStatusStopped, reason, id)
	return err
}

func (r *CampaignRepository) SetError(id, reason string) error {
	query := `UPDATE campaigns SET status=$1, error_reason=$2, stop_reason=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.CampaignStatusError, reason, id)
	return err
}

// UpdateProgress flushes the in-memory counters. Counters only ever grow,
// so GREATEST guards against an out-of-order flush rolling them back.
func (r *CampaignRepository) UpdateProgress(id string, p Progress) error {
	query := `
        UPDATE campaigns
        SET current_index=GREATEST(current_index, $1),
            sent_count=GREATEST(sent_count, $2),
            failed_count=GREATEST(failed_count, $3),
            skipped_count=GREATEST(skipped_count, $4),
            last_recipient=CASE WHEN $5 <> '' THEN $5 ELSE last_recipient END,
            last_sent_at=COALESCE($6, last_sent_at),
            updated_at=NOW()
        WHERE id=$7
    `
	_, err := r.DB.Exec(query, p.CurrentIndex, p.SentCount, p.FailedCount, p.SkippedCount,
		p.LastRecipient, p.LastSentAt, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var cfg []byte
	err := row.Scan(&c.ID, &c.Name, &c.OwnerRef, &c.SenderRef, &c.Status, &c.TotalCount,
		&c.CurrentIndex, &c.SentCount, &c.FailedCount, &c.SkippedCount, &cfg,
		&c.LastRecipient, &c.LastSentAt, &c.ErrorReason, &c.StopReason,
		&c.CreatedAt, &c.StartedAt, &c.PausedAt, &c.ResumedAt, &c.StoppedAt,
		&c.CompletedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &c.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config for campaign %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
