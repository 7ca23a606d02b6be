// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/dripsend-backend/internal/engine"
	appErrors "github.com/unclebandit/dripsend-backend/internal/errors"
	"github.com/unclebandit/dripsend-backend/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service    *service.CampaignService
	Controller *engine.Controller
}

func NewCampaignHandler(svc *service.CampaignService, ctrl *engine.Controller) *CampaignHandler {
	return &CampaignHandler{Service: svc, Controller: ctrl}
}

// Routes mounts all campaign endpoints on the given router.
func (h *CampaignHandler) Routes(r chi.Router) {
	r.Post("/campaigns", h.CreateCampaignHandler)
	r.Get("/campaigns", h.ListCampaignsHandler)
	r.Get("/campaigns/{id}", h.GetCampaignHandler)
	r.Get("/campaigns/{id}/eta", h.GetETAHandler)
	r.Post("/campaigns/{id}/start", h.StartCampaignHandler)
	r.Post("/campaigns/{id}/pause", h.PauseCampaignHandler)
	r.Post("/campaigns/{id}/resume", h.ResumeCampaignHandler)
	r.Post("/campaigns/{id}/stop", h.StopCampaignHandler)
}

// CreateCampaignHandler handles creating a new campaign with its recipients
func (h *CampaignHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := h.Service.CreateCampaign(payload)
	if err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			http.Error(w, "invalid campaign: "+verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to create campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

// ListCampaignsHandler returns a paginated list of campaigns
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && ps > 0 {
		pageSize = ps
	}
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := h.Service.ListCampaigns(page, pageSize, status)
	if err != nil {
		http.Error(w, "failed to fetch campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetCampaignHandler returns a campaign with queue stats; for a live
// campaign the in-memory snapshot rides along since persisted counters
// can trail it by one flush.
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetCampaignDetails(id)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	if snap, ok := h.Controller.LiveSnapshot(id); ok {
		details.Live = &snap
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}

// GetETAHandler returns the estimated send time of the next message.
func (h *CampaignHandler) GetETAHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	eta, ok := h.Controller.NextMessageETA(id)
	if !ok {
		http.Error(w, "campaign is not running", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign_id":       id,
		"next_message_eta":  eta.Format(time.RFC3339),
		"seconds_until_eta": int(time.Until(*eta).Seconds()),
	})
}

// StartCampaignHandler begins execution, or defers it to the next
// business-hours window. ?force=true bypasses the window.
func (h *CampaignHandler) StartCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"

	result, err := h.Controller.Start(id, force)
	if err != nil {
		writeCommandError(w, err)
		return
	}

	response := map[string]interface{}{
		"campaign_id": id,
		"status":      result.Status,
	}
	if result.ScheduledFor != nil {
		response["scheduled_for"] = result.ScheduledFor.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

func (h *CampaignHandler) PauseCampaignHandler(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "paused", h.Controller.Pause)
}

func (h *CampaignHandler) ResumeCampaignHandler(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "resumed", h.Controller.Resume)
}

func (h *CampaignHandler) StopCampaignHandler(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "stopped", h.Controller.Stop)
}

func (h *CampaignHandler) command(w http.ResponseWriter, r *http.Request, verb string, fn func(string) error) {
	id := chi.URLParam(r, "id")

	if err := fn(id); err != nil {
		writeCommandError(w, err)
		return
	}
	log.Printf("handler: campaign %s %s", id, verb)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"campaign_id": id,
		"result":      verb,
	})
}

// writeCommandError maps engine errors onto HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	var invalid *appErrors.ErrInvalidTransition
	var exists *appErrors.ErrExecutionExists
	switch {
	case appErrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalid), errors.As(err, &exists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
