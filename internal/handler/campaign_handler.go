package handler

import (
	"errors"
	"net/http"

	"github.com/mkieran/demesne/internal/auth"
	"github.com/mkieran/demesne/internal/service"
)

// CampaignHandler handles campaign lifecycle endpoints.
type CampaignHandler struct {
	campaignSvc *service.CampaignService
	wsHub       *Hub
}

// NewCampaignHandler creates a CampaignHandler.
func NewCampaignHandler(campaignSvc *service.CampaignService, wsHub *Hub) *CampaignHandler {
	return &CampaignHandler{campaignSvc: campaignSvc, wsHub: wsHub}
}

// CreateCampaign handles POST /api/v1/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Name         string `json:"name"`
		TurnDuration string `json:"turn_duration,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	campaign, err := h.campaignSvc.CreateCampaign(r.Context(), req.Name, userID, req.TurnDuration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	filter := r.URL.Query().Get("filter")
	campaigns, err := h.campaignSvc.ListCampaigns(r.Context(), userID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if campaigns == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	campaign, err := h.campaignSvc.GetCampaign(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// JoinCampaign handles POST /api/v1/campaigns/{id}/join
func (h *CampaignHandler) JoinCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.campaignSvc.JoinCampaign(r.Context(), campaignID, userID); err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
		} else if errors.Is(err, service.ErrCampaignStarted) || errors.Is(err, service.ErrAlreadyMember) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	campaign, err := h.campaignSvc.GetCampaign(r.Context(), campaignID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// StartCampaign handles POST /api/v1/campaigns/{id}/start
func (h *CampaignHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	campaign, err := h.campaignSvc.StartCampaign(r.Context(), campaignID, userID)
	if err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
		} else if errors.Is(err, service.ErrCampaignStarted) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else if errors.Is(err, service.ErrNotCreator) {
			writeError(w, http.StatusForbidden, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.wsHub.BroadcastCampaignEvent(campaignID, EventCampaignStarted, campaign)
	writeJSON(w, http.StatusOK, campaign)
}

// FinishCampaign handles POST /api/v1/campaigns/{id}/finish
func (h *CampaignHandler) FinishCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.campaignSvc.FinishCampaign(r.Context(), campaignID, userID); err != nil {
		if errors.Is(err, service.ErrCampaignNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
		} else if errors.Is(err, service.ErrNotCreator) {
			writeError(w, http.StatusForbidden, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.wsHub.BroadcastCampaignEvent(campaignID, EventCampaignEnded, map[string]string{"campaign_id": campaignID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "finished"})
}
