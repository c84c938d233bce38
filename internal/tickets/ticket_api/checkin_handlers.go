package ticket_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

type scanRequest struct {
	Code             string `json:"code"`
	OrganizerAddress string `json:"organizer_address,omitempty"`
}

type validateRequest struct {
	Token string `json:"token"`
}

// Scan checks a ticket in by its code. A service caller scans on behalf of
// the organizer named in organizer_address.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", err.Error()))
		return
	}
	if req.Code == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", "code is required"))
		return
	}

	scanner := identity
	if identity.Service && !identity.Admin {
		addr := utils.NormalizeAddress(req.OrganizerAddress)
		if addr == "" {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", "organizer_address is required for service scans"))
			return
		}
		scanner = models.Identity{UserID: identity.UserID, Addresses: []string{addr}}
	}

	res, err := h.TicketService.ScanForCheckIn(r.Context(), req.Code, scanner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeScanResult(w, res)
}

// Validate checks a ticket in by a presented bearer secret. Admin only.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !identity.Admin {
		h.Logger.LogSecurity("VALIDATE_DENIED", fmt.Sprintf("%s is not an admin", identity.Actor()))
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "admin role required"))
		return
	}
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", err.Error()))
		return
	}
	if req.Token == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", "token is required"))
		return
	}

	res, err := h.TicketService.ValidateAndCheckIn(r.Context(), req.Token, identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeScanResult(w, res)
}

// ListCheckIns returns the check-ins recorded for an event to its organizers.
func (h *Handler) ListCheckIns(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	checkIns, err := h.TicketService.ListCheckInsByEvent(r.Context(), chi.URLParam(r, "eventId"), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event check-ins", checkIns))
}
