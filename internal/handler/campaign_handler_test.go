package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/dripsend-backend/internal/engine"
	appErrors "github.com/unclebandit/dripsend-backend/internal/errors"
	"github.com/unclebandit/dripsend-backend/internal/handler"
	"github.com/unclebandit/dripsend-backend/internal/health"
	"github.com/unclebandit/dripsend-backend/internal/metrics"
	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/publish"
	"github.com/unclebandit/dripsend-backend/internal/repository"
	"github.com/unclebandit/dripsend-backend/internal/service"
)

// --- Mock store backing both repositories ---

type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	items     map[string][]*model.QueueItem
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*model.Campaign),
		items:     make(map[string][]*model.QueueItem),
	}
}

func (s *memStore) Create(c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *memStore) GetByID(id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range s.campaigns {
		if status == "" || string(c.Status) == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (s *memStore) ListByStatus(statuses ...model.CampaignStatus) ([]*model.Campaign, error) {
	return nil, nil
}

func (s *memStore) UpdateStatus(id string, status model.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (s *memStore) SetStopped(id, reason string) error {
	if err := s.UpdateStatus(id, model.CampaignStatusStopped); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].StopReason = reason
	return nil
}

func (s *memStore) SetError(id, reason string) error {
	if err := s.UpdateStatus(id, model.CampaignStatusError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].ErrorReason = reason
	return nil
}

func (s *memStore) UpdateProgress(id string, p repository.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	if p.SentCount > c.SentCount {
		c.SentCount = p.SentCount
	}
	if p.FailedCount > c.FailedCount {
		c.FailedCount = p.FailedCount
	}
	if p.SkippedCount > c.SkippedCount {
		c.SkippedCount = p.SkippedCount
	}
	if p.CurrentIndex > c.CurrentIndex {
		c.CurrentIndex = p.CurrentIndex
	}
	return nil
}

func (s *memStore) BulkCreate(items []*model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		cp := *it
		s.items[it.CampaignID] = append(s.items[it.CampaignID], &cp)
	}
	return nil
}

func (s *memStore) ClaimNext(campaignID string) (*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items[campaignID] {
		if it.Status == model.QueueItemStatusPending {
			it.Status = model.QueueItemStatusProcessing
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) mark(id string, status model.QueueItemStatus, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, items := range s.items {
		for _, it := range items {
			if it.ID == id {
				it.Status = status
				it.ErrorDetail = detail
				return
			}
		}
	}
}

func (s *memStore) MarkSent(id string, at time.Time) error {
	s.mark(id, model.QueueItemStatusSent, "")
	return nil
}

func (s *memStore) MarkFailed(id, detail string) error {
	s.mark(id, model.QueueItemStatusFailed, detail)
	return nil
}

func (s *memStore) MarkSkipped(id, detail string) error {
	s.mark(id, model.QueueItemStatusSkipped, detail)
	return nil
}

func (s *memStore) BulkSkipRemaining(campaignID, detail string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items[campaignID] {
		if it.Status == model.QueueItemStatusPending || it.Status == model.QueueItemStatusProcessing {
			it.Status = model.QueueItemStatusSkipped
			it.ErrorDetail = detail
			n++
		}
	}
	return n, nil
}

func (s *memStore) ResetProcessing(campaignID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items[campaignID] {
		if it.Status == model.QueueItemStatusProcessing {
			it.Status = model.QueueItemStatusPending
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountsByStatus(campaignID string) (map[model.QueueItemStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[model.QueueItemStatus]int{}
	for _, it := range s.items[campaignID] {
		counts[it.Status]++
	}
	return counts, nil
}

var (
	_ repository.CampaignRepositoryInterface  = (*memStore)(nil)
	_ repository.QueueItemRepositoryInterface = (*memStore)(nil)
)

// okSender succeeds after a short pause, slow enough for commands to
// land mid-run.
type okSender struct{ delay time.Duration }

func (s okSender) Send(ctx context.Context, recipientRef, payload string) error {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.delay):
		}
	}
	return nil
}

// --- Fixture ---

type fixture struct {
	store *memStore
	ctrl  *engine.Controller
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	gov := health.NewGovernor(health.NewStaticSource(100), health.Config{})
	ctrl := engine.NewController(store, store, okSender{delay: 5 * time.Millisecond}, gov,
		publish.NoopPublisher{}, metrics.NewNoopSink(), engine.Config{
			HealthCheckEvery:  1,
			FlushEvery:        1,
			FlushInterval:     time.Second,
			PausePollInterval: 5 * time.Millisecond,
			BackpressureWait:  5 * time.Millisecond,
			OrphanAge:         24 * time.Hour,
			Seed:              1,
		})
	svc := service.NewCampaignService(store, store)

	r := chi.NewRouter()
	handler.NewCampaignHandler(svc, ctrl).Routes(r)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		ctrl.Shutdown(context.Background())
	})
	return &fixture{store: store, ctrl: ctrl, srv: srv}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(f.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (f *fixture) seed(t *testing.T, id string, n int) {
	t.Helper()
	f.store.Create(&model.Campaign{
		ID: id, Name: "seeded", OwnerRef: "o", SenderRef: "a",
		Status: model.CampaignStatusIdle, TotalCount: n,
		Config: model.CampaignConfig{
			Profile:       model.ProfileEstablished,
			MessageDelay:  &model.Range{Min: 0, Max: 0},
			RestThreshold: &model.Range{Min: 0, Max: 0},
		},
	})
	items := make([]*model.QueueItem, n)
	for i := 0; i < n; i++ {
		items[i] = &model.QueueItem{
			ID: fmt.Sprintf("%s-%d", id, i), CampaignID: id, SequenceIndex: i,
			RecipientRef: fmt.Sprintf("r-%d", i), Payload: "hi",
			Status: model.QueueItemStatusPending,
		}
	}
	f.store.BulkCreate(items)
}

func (f *fixture) waitForStatus(t *testing.T, id string, want model.CampaignStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, _ := f.store.GetByID(id)
		if c != nil && c.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	c, _ := f.store.GetByID(id)
	t.Fatalf("campaign %s never reached %s (now %s)", id, want, c.Status)
}

// --- Tests ---

func TestCreateCampaignHandler(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/campaigns", map[string]interface{}{
		"name":       "promo",
		"owner_ref":  "owner-1",
		"sender_ref": "acct-1",
		"config":     map[string]interface{}{"profile": "warming"},
		"recipients": []map[string]string{
			{"recipient_ref": "+254700000001", "payload": "hello"},
			{"recipient_ref": "+254700000002", "payload": "hello"},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created model.Campaign
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.TotalCount != 2 {
		t.Fatalf("campaign %+v", created)
	}
	if len(f.store.items[created.ID]) != 2 {
		t.Fatalf("queue items %d", len(f.store.items[created.ID]))
	}
}

func TestCreateCampaignHandlerRejectsInvalid(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/campaigns", map[string]interface{}{
		"name":       "",
		"owner_ref":  "owner-1",
		"sender_ref": "acct-1",
		"recipients": []map[string]string{},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStartPauseResumeStopOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", 30)

	resp := f.post(t, "/campaigns/c1/start", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d", resp.StatusCode)
	}
	f.waitForStatus(t, "c1", model.CampaignStatusRunning)

	resp = f.post(t, "/campaigns/c1/pause", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", resp.StatusCode)
	}
	f.waitForStatus(t, "c1", model.CampaignStatusPaused)

	resp = f.post(t, "/campaigns/c1/resume", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", resp.StatusCode)
	}
	f.waitForStatus(t, "c1", model.CampaignStatusRunning)

	resp = f.post(t, "/campaigns/c1/stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", resp.StatusCode)
	}
	f.waitForStatus(t, "c1", model.CampaignStatusStopped)

	// Stop is idempotent over HTTP too.
	resp = f.post(t, "/campaigns/c1/stop", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second stop: expected 200, got %d", resp.StatusCode)
	}
}

func TestStartUnknownCampaignReturns404(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/campaigns/nope/start", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStartCompletedCampaignReturns409(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", 1)
	f.store.UpdateStatus("c1", model.CampaignStatusCompleted)

	resp := f.post(t, "/campaigns/c1/start", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestGetCampaignDetailsHandler(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", 3)

	resp := f.get(t, "/campaigns/c1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var details struct {
		Campaign model.Campaign `json:"campaign"`
		Stats    map[string]int `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.Campaign.ID != "c1" {
		t.Fatalf("campaign %+v", details.Campaign)
	}
	if details.Stats["pending"] != 3 || details.Stats["total"] != 3 {
		t.Fatalf("stats %v", details.Stats)
	}
}

func TestETAHandler(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", 1)

	// Not running yet: no ETA.
	resp := f.get(t, "/campaigns/c1/eta")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before start, got %d", resp.StatusCode)
	}
}

func TestListCampaignsHandler(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", 1)
	f.seed(t, "c2", 1)

	resp := f.get(t, "/campaigns?page=1&page_size=10")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 {
		t.Fatalf("got %d campaigns", len(body.Data))
	}
	if body.Pagination["total_count"] != 2 {
		t.Fatalf("pagination %v", body.Pagination)
	}
}
