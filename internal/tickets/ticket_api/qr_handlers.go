package ticket_api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/utils"
)

type issueQRRequest struct {
	TTLMinutes *int `json:"ttl_minutes,omitempty"`
}

// IssueQR rotates the ticket's credential. The holder or an admin may call
// it. With ?format=png the secret is returned only inside the QR image.
func (h *Handler) IssueQR(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req issueQRRequest
	if err := decodeBody(r, &req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request", err.Error()))
		return
	}
	ttl := h.TicketService.CredentialTTL
	if req.TTLMinutes != nil {
		minutes := *req.TTLMinutes
		if minutes < 0 || minutes > int(tickets.MaxCredentialTTL/time.Minute) {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("bad request",
				fmt.Sprintf("ttl_minutes must be between 0 and %d", int(tickets.MaxCredentialTTL/time.Minute))))
			return
		}
		ttl = time.Duration(minutes) * time.Minute
	}

	// The credential belongs to the holder, also when an admin rotates it.
	cred, err := h.TicketService.IssueCredential(r.Context(), ticket.ID, ticket.EventID, ticket.HolderAddress, ttl)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "png" {
		png, err := h.QRGenerator.GeneratePNG(cred.Secret)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("render qr: %w", err))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-QR-Token-Id", cred.TokenID)
		w.Header().Set("X-QR-Expires-At", cred.ExpiresAt.Format(time.RFC3339))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(png)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("QR credential issued", cred))
}

// ActiveQR returns the live credential's metadata. The secret cannot be
// recovered; a lost secret means issuing a new one.
func (h *Handler) ActiveQR(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.TicketService.GetActiveCredential(r.Context(), ticket.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Active QR credential", token))
}
