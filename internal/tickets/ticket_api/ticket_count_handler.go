package ticket_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/utils"
)

// GetEventStats reports sold, remaining and checked-in counts to organizers.
func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")
	if _, err := h.TicketService.AuthorizeOrganizer(r.Context(), eventID, identity); err != nil {
		h.writeError(w, r, err)
		return
	}

	stats, err := h.TicketService.GetEventStats(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event stats", stats))
}
