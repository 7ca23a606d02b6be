package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/dripsend-backend/internal/model"
)

type QueueItemRepositoryInterface interface {
	BulkCreate(items []*model.QueueItem) error
	ClaimNext(campaignID string) (*model.QueueItem, error)
	MarkSent(id string, at time.Time) error
	MarkFailed(id, detail string) error
	MarkSkipped(id, detail string) error
	BulkSkipRemaining(campaignID, detail string) (int, error)
	ResetProcessing(campaignID string) (int, error)
	CountsByStatus(campaignID string) (map[model.QueueItemStatus]int, error)
}

type QueueItemRepository struct {
	DB *sql.DB
}

const queueItemColumns = `id, campaign_id, sequence_index, recipient_ref, payload,
        status, error_detail, sent_at, created_at, updated_at`

func (r *QueueItemRepository) BulkCreate(items []*model.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now()
	var sb strings.Builder
	sb.WriteString(`INSERT INTO queue_items
        (id, campaign_id, sequence_index, recipient_ref, payload, status, created_at, updated_at)
        VALUES `)
	args := []interface{}{}
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		it.Status = model.QueueItemStatusPending
		it.CreatedAt = now
		it.UpdatedAt = now
		args = append(args, it.ID, it.CampaignID, it.SequenceIndex, it.RecipientRef,
			it.Payload, it.Status, it.CreatedAt, it.UpdatedAt)
	}
	_, err := r.DB.Exec(sb.String(), args...)
	return err
}

// ClaimNext atomically moves the lowest-sequence pending item to
// processing and returns it. SKIP LOCKED makes the claim safe even if two
// loops were mistakenly started for the same campaign: each pending row is
// handed to exactly one claimant. Returns (nil, nil) when nothing is
// claimable.
func (r *QueueItemRepository) ClaimNext(campaignID string) (*model.QueueItem, error) {
	query := `
        UPDATE queue_items
        SET status='processing', updated_at=NOW()
        WHERE id = (
            SELECT id FROM queue_items
            WHERE campaign_id=$1 AND status='pending'
            ORDER BY sequence_index
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        )
        RETURNING ` + queueItemColumns
	item, err := scanQueueItem(r.DB.QueryRow(query, campaignID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *QueueItemRepository) MarkSent(id string, at time.Time) error {
	query := `UPDATE queue_items SET status='sent', sent_at=$1, error_detail='', updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, at, id)
	return err
}

func (r *QueueItemRepository) MarkFailed(id, detail string) error {
	query := `UPDATE queue_items SET status='failed', error_detail=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, detail, id)
	return err
}

func (r *QueueItemRepository) MarkSkipped(id, detail string) error {
	query := `UPDATE queue_items SET status='skipped', error_detail=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, detail, id)
	return err
}

// BulkSkipRemaining skips every pending and processing item, used by
// operator stop.
func (r *QueueItemRepository) BulkSkipRemaining(campaignID, detail string) (int, error) {
	query := `
        UPDATE queue_items
        SET status='skipped', error_detail=$1, updated_at=NOW()
        WHERE campaign_id=$2 AND status IN ('pending', 'processing')
    `
	res, err := r.DB.Exec(query, detail, campaignID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ResetProcessing returns in-flight items to pending. Used when a loop
// exits on a session-level error (the recipient was not at fault) and on
// crash recovery before resuming.
func (r *QueueItemRepository) ResetProcessing(campaignID string) (int, error) {
	query := `
        UPDATE queue_items
        SET status='pending', updated_at=NOW()
        WHERE campaign_id=$1 AND status='processing'
    `
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *QueueItemRepository) CountsByStatus(campaignID string) (map[model.QueueItemStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM queue_items WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.QueueItemStatus]int{
		model.QueueItemStatusPending:    0,
		model.QueueItemStatusProcessing: 0,
		model.QueueItemStatusSent:       0,
		model.QueueItemStatusFailed:     0,
		model.QueueItemStatusSkipped:    0,
	}
	for rows.Next() {
		var status model.QueueItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	var it model.QueueItem
	err := row.Scan(&it.ID, &it.CampaignID, &it.SequenceIndex, &it.RecipientRef,
		&it.Payload, &it.Status, &it.ErrorDetail, &it.SentAt, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

var _ QueueItemRepositoryInterface = (*QueueItemRepository)(nil)
