package ticket_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"
	qr "ms-checkin/internal/tickets/qr_generator"
	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	QRGenerator   *qr.QRGenerator
	Feed          *sse.CheckInEmitter
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, generator *qr.QRGenerator, feed *sse.CheckInEmitter, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: ticketService,
		QRGenerator:   generator,
		Feed:          feed,
		Logger:        log,
	}
}

// RegisterRoutes mounts the ticket and check-in endpoints. The router must
// already run auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/purchases", h.Purchase)

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.ListTicketsByHolder)
		r.Get("/{ticketId}", h.ViewTicket)
		r.Post("/{ticketId}/qr", h.IssueQR)
		r.Get("/{ticketId}/qr/active", h.ActiveQR)
	})

	r.Route("/checkin", func(r chi.Router) {
		r.Post("/scan", h.Scan)
		r.Post("/validate", h.Validate)
	})

	r.Route("/events/{eventId}", func(r chi.Router) {
		r.Get("/tickets", h.ListTicketsByEvent)
		r.Get("/stats", h.GetEventStats)
		r.Get("/checkins", h.ListCheckIns)
		r.Get("/checkins/stream", h.StreamCheckIns)
	})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "no authenticated identity"))
	}
	return identity, ok
}

func decodeBody(r *http.Request, into interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeError maps service errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tickets.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, tickets.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, tickets.ErrEventNotFound),
		errors.Is(err, tickets.ErrTicketNotFound),
		errors.Is(err, tickets.ErrCredentialNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tickets.ErrEventNotActive),
		errors.Is(err, tickets.ErrSoldOut):
		status = http.StatusConflict
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s failed: %v", r.Method, r.URL.Path, err))
		message = "internal error"
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(http.StatusText(status), message))
}

// scanStatusCode maps a scan outcome onto an HTTP status code.
func scanStatusCode(status tickets.ScanStatus) int {
	switch status {
	case tickets.StatusValid:
		return http.StatusOK
	case tickets.StatusNotFound, tickets.StatusInvalid:
		return http.StatusNotFound
	case tickets.StatusUnauthorized:
		return http.StatusForbidden
	case tickets.StatusAlreadyCheckedIn, tickets.StatusInactive:
		return http.StatusConflict
	case tickets.StatusExpired:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeScanResult(w http.ResponseWriter, res *tickets.ScanResult) {
	utils.WriteJSON(w, scanStatusCode(res.Status), utils.APIResponse{
		Success:   res.OK,
		Message:   res.Message,
		Data:      res,
		Timestamp: time.Now().UTC(),
	})
}
