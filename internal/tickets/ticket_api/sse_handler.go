package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/utils"
)

const keepAliveInterval = 25 * time.Second

// StreamCheckIns streams an event's check-ins to its organizers.
func (h *Handler) StreamCheckIns(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")
	if _, err := h.TicketService.AuthorizeOrganizer(r.Context(), eventID, identity); err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("internal error", "streaming unsupported"))
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	events := h.Feed.SubscribeToEvent(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":%q}\n\n", eventID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client %s connected to check-ins of event %s", identity.Actor(), eventID))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(evt)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize check-in event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from check-ins of event %s", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
