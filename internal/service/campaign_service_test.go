package service_test

import (
	"testing"
	"time"

	appErrors "github.com/unclebandit/dripsend-backend/internal/errors"
	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/repository"
	"github.com/unclebandit/dripsend-backend/internal/service"
)

// Mock repositories
type MockCampaignRepo struct {
	created   []*model.Campaign
	campaigns map[string]*model.Campaign
	listed    []*model.Campaign
	total     int

	lastOffset, lastLimit int
	lastStatus            string
}

func (m *MockCampaignRepo) Create(c *model.Campaign) error {
	m.created = append(m.created, c)
	return nil
}

func (m *MockCampaignRepo) GetByID(id string) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *MockCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.lastOffset, m.lastLimit, m.lastStatus = offset, limit, status
	return m.listed, m.total, nil
}

func (m *MockCampaignRepo) ListByStatus(statuses ...model.CampaignStatus) ([]*model.Campaign, error) {
	return nil, nil
}
func (m *MockCampaignRepo) UpdateStatus(id string, status model.CampaignStatus) error { return nil }
func (m *MockCampaignRepo) SetStopped(id, reason string) error                        { return nil }
func (m *MockCampaignRepo) SetError(id, reason string) error                          { return nil }
func (m *MockCampaignRepo) UpdateProgress(id string, p repository.Progress) error     { return nil }

type MockQueueRepo struct {
	bulkCreated []*model.QueueItem
	counts      map[model.QueueItemStatus]int
}

func (m *MockQueueRepo) BulkCreate(items []*model.QueueItem) error {
	m.bulkCreated = append(m.bulkCreated, items...)
	return nil
}

func (m *MockQueueRepo) CountsByStatus(campaignID string) (map[model.QueueItemStatus]int, error) {
	return m.counts, nil
}

func (m *MockQueueRepo) ClaimNext(campaignID string) (*model.QueueItem, error) { return nil, nil }
func (m *MockQueueRepo) MarkSent(id string, at time.Time) error                { return nil }
func (m *MockQueueRepo) MarkFailed(id, detail string) error                    { return nil }
func (m *MockQueueRepo) MarkSkipped(id, detail string) error                   { return nil }
func (m *MockQueueRepo) BulkSkipRemaining(campaignID, detail string) (int, error) {
	return 0, nil
}
func (m *MockQueueRepo) ResetProcessing(campaignID string) (int, error) { return 0, nil }

var (
	_ repository.CampaignRepositoryInterface  = (*MockCampaignRepo)(nil)
	_ repository.QueueItemRepositoryInterface = (*MockQueueRepo)(nil)
)

func validInput() service.CreateCampaignInput {
	return service.CreateCampaignInput{
		Name:      "spring promo",
		OwnerRef:  "owner-1",
		SenderRef: "acct-1",
		Config:    model.CampaignConfig{Profile: model.ProfileWarming},
		Recipients: []service.RecipientInput{
			{RecipientRef: "+254700000001", Payload: "hi one"},
			{RecipientRef: "+254700000002", Payload: "hi two"},
			{RecipientRef: "+254700000003", Payload: "hi three"},
		},
	}
}

func TestCreateCampaign(t *testing.T) {
	campaigns := &MockCampaignRepo{}
	queue := &MockQueueRepo{}
	svc := service.NewCampaignService(campaigns, queue)

	c, err := svc.CreateCampaign(validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected a generated id")
	}
	if c.Status != model.CampaignStatusIdle {
		t.Fatalf("status %s, want idle", c.Status)
	}
	if c.TotalCount != 3 {
		t.Fatalf("total %d, want 3", c.TotalCount)
	}
	if len(queue.bulkCreated) != 3 {
		t.Fatalf("queue items %d, want 3", len(queue.bulkCreated))
	}
	for i, it := range queue.bulkCreated {
		if it.SequenceIndex != i {
			t.Fatalf("item %d has sequence %d", i, it.SequenceIndex)
		}
		if it.CampaignID != c.ID {
			t.Fatalf("item %d bound to campaign %s", i, it.CampaignID)
		}
		if it.Status != model.QueueItemStatusPending {
			t.Fatalf("item %d status %s", i, it.Status)
		}
	}
}

func TestCreateCampaignDefaultsProfile(t *testing.T) {
	svc := service.NewCampaignService(&MockCampaignRepo{}, &MockQueueRepo{})
	in := validInput()
	in.Config.Profile = ""

	c, err := svc.CreateCampaign(in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Config.Profile != model.ProfileNew {
		t.Fatalf("profile %s, want new", c.Config.Profile)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	svc := service.NewCampaignService(&MockCampaignRepo{}, &MockQueueRepo{})

	in := validInput()
	in.Name = ""
	if _, err := svc.CreateCampaign(in); err == nil {
		t.Fatal("expected error for empty name")
	}

	in = validInput()
	in.Recipients = nil
	if _, err := svc.CreateCampaign(in); err == nil {
		t.Fatal("expected error for empty recipient list")
	}

	in = validInput()
	in.Recipients[1].RecipientRef = ""
	if _, err := svc.CreateCampaign(in); err == nil {
		t.Fatal("expected error for blank recipient")
	}

	in = validInput()
	in.Config.BusinessHours = model.BusinessHours{Enabled: true, StartHour: 30, EndHour: 17}
	if _, err := svc.CreateCampaign(in); err == nil {
		t.Fatal("expected error for out-of-range start hour")
	}
}

func TestListCampaignsPagination(t *testing.T) {
	campaigns := &MockCampaignRepo{
		listed: []*model.Campaign{{ID: "a"}, {ID: "b"}},
		total:  42,
	}
	svc := service.NewCampaignService(campaigns, &MockQueueRepo{})

	list, pagination, err := svc.ListCampaigns(3, 10, "running")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d campaigns", len(list))
	}
	if campaigns.lastOffset != 20 || campaigns.lastLimit != 10 {
		t.Fatalf("offset/limit %d/%d", campaigns.lastOffset, campaigns.lastLimit)
	}
	if campaigns.lastStatus != "running" {
		t.Fatalf("status filter %q", campaigns.lastStatus)
	}
	if pagination["total_count"] != 42 || pagination["total_pages"] != 5 {
		t.Fatalf("pagination %v", pagination)
	}

	// Out-of-range inputs are clamped, not rejected.
	_, pagination, _ = svc.ListCampaigns(0, 1000, "")
	if pagination["page"] != 1 || pagination["page_size"] != 100 {
		t.Fatalf("clamping failed: %v", pagination)
	}
}

func TestGetCampaignDetails(t *testing.T) {
	campaigns := &MockCampaignRepo{
		campaigns: map[string]*model.Campaign{
			"c1": {ID: "c1", Name: "promo", Status: model.CampaignStatusRunning, TotalCount: 10},
		},
	}
	queue := &MockQueueRepo{counts: map[model.QueueItemStatus]int{
		model.QueueItemStatusSent:    4,
		model.QueueItemStatusFailed:  1,
		model.QueueItemStatusPending: 5,
	}}
	svc := service.NewCampaignService(campaigns, queue)

	details, err := svc.GetCampaignDetails("c1")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Campaign.Name != "promo" {
		t.Fatalf("campaign %+v", details.Campaign)
	}
	if details.Stats["sent"] != 4 || details.Stats["failed"] != 1 || details.Stats["total"] != 10 {
		t.Fatalf("stats %v", details.Stats)
	}

	if _, err := svc.GetCampaignDetails("missing"); !appErrors.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
