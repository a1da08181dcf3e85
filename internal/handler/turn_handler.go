package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mkieran/demesne/internal/auth"
	"github.com/mkieran/demesne/internal/repository"
	"github.com/mkieran/demesne/internal/service"
	"github.com/mkieran/demesne/pkg/engine"
	"github.com/mkieran/demesne/pkg/kingdom"
)

// TurnHandler handles turn progression, skill checks, and undo/redo.
type TurnHandler struct {
	turnSvc  *service.TurnService
	checkSvc *service.CheckService
	turnRepo repository.TurnRepository
}

// NewTurnHandler creates a TurnHandler.
func NewTurnHandler(turnSvc *service.TurnService, checkSvc *service.CheckService, turnRepo repository.TurnRepository) *TurnHandler {
	return &TurnHandler{turnSvc: turnSvc, checkSvc: checkSvc, turnRepo: turnRepo}
}

// GetState handles GET /api/v1/campaigns/{id}/state
func (h *TurnHandler) GetState(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	state, err := h.turnSvc.CurrentState(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, service.ErrNoKingdomState) {
			writeError(w, http.StatusNotFound, "campaign has no live state")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// CompleteStep handles POST /api/v1/campaigns/{id}/steps/{index}/complete.
// The request itself is the explicit action a manual step requires.
func (h *TurnHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid step index")
		return
	}

	state, err := h.turnSvc.CompleteStep(r.Context(), campaignID, index, userID, true)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// AdvancePhase handles POST /api/v1/campaigns/{id}/phase/advance
func (h *TurnHandler) AdvancePhase(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	state, err := h.turnSvc.AdvancePhase(r.Context(), campaignID, userID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// AdvanceTurn handles POST /api/v1/campaigns/{id}/turn/advance
func (h *TurnHandler) AdvanceTurn(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	state, err := h.turnSvc.AdvanceTurn(r.Context(), campaignID, userID, false)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// EventCheck handles POST /api/v1/campaigns/{id}/event-check.
// An empty event_id records that no event triggered this turn.
func (h *TurnHandler) EventCheck(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.turnSvc.BeginEventPhase(r.Context(), campaignID, req.EventID, userID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SubmitCheck handles POST /api/v1/campaigns/{id}/checks
func (h *TurnHandler) SubmitCheck(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Kind             string `json:"kind"`
		RecordID         string `json:"record_id"`
		Skill            string `json:"skill"`
		NaturalRoll      int    `json:"natural_roll"`
		TotalModifier    int    `json:"total_modifier"`
		DC               int    `json:"dc"`
		Turn             int    `json:"turn"`
		TargetModifierID string `json:"target_modifier_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RecordID == "" {
		writeError(w, http.StatusBadRequest, "record_id is required")
		return
	}
	kind, err := service.ParseCheckKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.checkSvc.SubmitCheck(r.Context(), campaignID, userID, service.CheckSubmission{
		Kind:     kind,
		RecordID: req.RecordID,
		Skill:    req.Skill,
		Input: kingdom.CheckInput{
			NaturalRoll:   req.NaturalRoll,
			TotalModifier: req.TotalModifier,
			DC:            req.DC,
			Skill:         req.Skill,
			Turn:          req.Turn,
		},
		TargetModifierID: req.TargetModifierID,
	})
	if err != nil {
		h.writeCheckError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Reroll handles POST /api/v1/campaigns/{id}/checks/reroll
func (h *TurnHandler) Reroll(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		NaturalRoll   int `json:"natural_roll"`
		TotalModifier int `json:"total_modifier"`
		DC            int `json:"dc"`
		Turn          int `json:"turn"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.checkSvc.Reroll(r.Context(), campaignID, userID, kingdom.CheckInput{
		NaturalRoll:   req.NaturalRoll,
		TotalModifier: req.TotalModifier,
		DC:            req.DC,
		Turn:          req.Turn,
	})
	if err != nil {
		h.writeCheckError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Undo handles POST /api/v1/campaigns/{id}/undo
func (h *TurnHandler) Undo(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	state, res, err := h.turnSvc.Undo(r.Context(), campaignID, userID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, undoRedoResponse(state, res))
}

// Redo handles POST /api/v1/campaigns/{id}/redo
func (h *TurnHandler) Redo(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	state, res, err := h.turnSvc.Redo(r.Context(), campaignID, userID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, undoRedoResponse(state, res))
}

// ListTurns handles GET /api/v1/campaigns/{id}/turns
func (h *TurnHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	turns, err := h.turnRepo.ListTurns(r.Context(), campaignID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// ListChecks handles GET /api/v1/campaigns/{id}/checks?turn=N
func (h *TurnHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	turn, err := strconv.Atoi(r.URL.Query().Get("turn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "turn query parameter is required")
		return
	}

	checks, err := h.turnRepo.ListChecks(r.Context(), campaignID, turn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

// ListModifiers handles GET /api/v1/campaigns/{id}/modifiers. Only
// player-visible ledger entries are returned.
func (h *TurnHandler) ListModifiers(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	state, err := h.turnSvc.CurrentState(r.Context(), campaignID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	modifiers := state.VisibleModifiers()
	if modifiers == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, modifiers)
}

// GetDoctrine handles GET /api/v1/campaigns/{id}/doctrine
func (h *TurnHandler) GetDoctrine(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	state, err := h.turnSvc.CurrentState(r.Context(), campaignID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.Doctrine)
}

// ListMilestones handles GET /api/v1/campaigns/{id}/milestones
func (h *TurnHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")
	milestones, err := h.turnRepo.ListMilestones(r.Context(), campaignID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func undoRedoResponse(state *kingdom.State, res engine.Result) map[string]any {
	resp := map[string]any{"state": state}
	if len(res.RollbackErrors) > 0 {
		msgs := make([]string, len(res.RollbackErrors))
		for i, e := range res.RollbackErrors {
			msgs[i] = e.Error()
		}
		resp["rollback_errors"] = msgs
	}
	return resp
}

func (h *TurnHandler) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoKingdomState):
		writeError(w, http.StatusNotFound, "campaign has no live state")
	case errors.Is(err, service.ErrPhaseIncomplete),
		errors.Is(err, service.ErrNoFurtherPhase),
		errors.Is(err, service.ErrManualStep),
		errors.Is(err, kingdom.ErrStepIndex),
		errors.Is(err, engine.ErrNothingToUndo),
		errors.Is(err, engine.ErrNothingToRedo),
		errors.Is(err, engine.ErrUndoUnsupported),
		errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *TurnHandler) writeCheckError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoKingdomState):
		writeError(w, http.StatusNotFound, "campaign has no live state")
	case errors.Is(err, service.ErrModifierNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownRecord),
		errors.Is(err, service.ErrUnknownCheckKind),
		errors.Is(err, service.ErrNoOutcome),
		errors.Is(err, service.ErrSkillNotAllowed),
		errors.Is(err, service.ErrNoPendingCheck),
		errors.Is(err, service.ErrRerollLimit),
		errors.Is(err, kingdom.ErrInvalidRoll):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
