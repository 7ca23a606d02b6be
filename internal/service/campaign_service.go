// internal/service/campaign_service.go
package service

import (
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appErrors "github.com/unclebandit/dripsend-backend/internal/errors"
	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/publish"
	"github.com/unclebandit/dripsend-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	QueueRepo    repository.QueueItemRepositoryInterface
	Validate     *validator.Validate
}

func NewCampaignService(
	campaigns repository.CampaignRepositoryInterface,
	items repository.QueueItemRepositoryInterface,
) *CampaignService {
	return &CampaignService{
		CampaignRepo: campaigns,
		QueueRepo:    items,
		Validate:     validator.New(),
	}
}

type RecipientInput struct {
	RecipientRef string `json:"recipient_ref" validate:"required"`
	Payload      string `json:"payload" validate:"required"`
}

type CreateCampaignInput struct {
	Name       string               `json:"name" validate:"required,max=200"`
	OwnerRef   string               `json:"owner_ref" validate:"required"`
	SenderRef  string               `json:"sender_ref" validate:"required"`
	Config     model.CampaignConfig `json:"config"`
	Recipients []RecipientInput     `json:"recipients" validate:"min=1,dive"`
}

// CreateCampaign persists a campaign in idle state together with its
// send queue, one item per recipient in the given order.
func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if in.Config.Profile == "" {
		in.Config.Profile = model.ProfileNew
	}
	if err := s.Validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.Validate.Struct(in.Config); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:         uuid.NewString(),
		Name:       in.Name,
		OwnerRef:   in.OwnerRef,
		SenderRef:  in.SenderRef,
		Status:     model.CampaignStatusIdle,
		TotalCount: len(in.Recipients),
		Config:     in.Config,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]*model.QueueItem, len(in.Recipients))
	for i, r := range in.Recipients {
		items[i] = &model.QueueItem{
			ID:            uuid.NewString(),
			CampaignID:    c.ID,
			SequenceIndex: i,
			RecipientRef:  r.RecipientRef,
			Payload:       r.Payload,
			Status:        model.QueueItemStatusPending,
			CreatedAt:     now,
		}
	}
	if err := s.QueueRepo.BulkCreate(items); err != nil {
		return nil, err
	}

	log.Printf("service: campaign %s created with %d recipients", c.ID, len(items))
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

type CampaignDetails struct {
	Campaign *model.Campaign   `json:"campaign"`
	Stats    map[string]int    `json:"stats"`
	Live     *publish.Snapshot `json:"live,omitempty"`
}

// GetCampaignDetails fetches a campaign together with its queue stats.
// The live snapshot, when an execution loop exists, is overlaid by the
// handler; persisted counters can trail it by one flush interval.
func (s *CampaignService) GetCampaignDetails(id string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, appErrors.NewCampaignNotFound(id)
	}

	counts, err := s.QueueRepo.CountsByStatus(id)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{
		"total":      0,
		"pending":    0,
		"processing": 0,
		"sent":       0,
		"failed":     0,
		"skipped":    0,
	}
	for status, n := range counts {
		stats[string(status)] = n
		stats["total"] += n
	}

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}
