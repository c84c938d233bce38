package ticket_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/utils"
)

// Purchase records a settled purchase and issues the first credential.
// Only the payment flow (service role) and admins may call it.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !identity.Service && !identity.Admin {
		h.Logger.LogSecurity("PURCHASE_DENIED", fmt.Sprintf("%s is neither service nor admin", identity.Actor()))
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "service or admin role required"))
		return
	}

	var req tickets.PurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", err.Error()))
		return
	}

	receipt, err := h.TicketService.RecordPurchaseAndIssue(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket purchased", receipt))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket retrieved", ticket))
}

// ListTicketsByHolder lists ?holder=<address>, defaulting to the caller's
// first address.
func (h *Handler) ListTicketsByHolder(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	holder := r.URL.Query().Get("holder")
	if holder == "" && len(identity.Addresses) > 0 {
		holder = identity.Addresses[0]
	}

	list, err := h.TicketService.ListTicketsByHolder(r.Context(), holder, identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d ticket(s)", len(list)), list))
}

func (h *Handler) ListTicketsByEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	list, err := h.TicketService.ListTicketsByEvent(r.Context(), chi.URLParam(r, "eventId"), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d ticket(s)", len(list)), list))
}
