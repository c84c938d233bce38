package tickets

import (
	"context"
	"errors"
	"fmt"

	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
)

// GetEventStats reports the capacity ledger of an event next to how many of
// its tickets have been checked in.
func (s *TicketService) GetEventStats(ctx context.Context, eventID string) (*models.EventStats, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", eventID, err)
	}

	ticketCount, err := s.DB.CountTicketsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("count tickets of event %s: %w", eventID, err)
	}
	checkedIn, err := s.DB.CountCheckInsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("count check-ins of event %s: %w", eventID, err)
	}

	remaining := event.MaxTickets - event.TicketsSold
	if remaining < 0 {
		remaining = 0
	}
	return &models.EventStats{
		EventID:     event.ID,
		MaxTickets:  event.MaxTickets,
		TicketsSold: event.TicketsSold,
		Remaining:   remaining,
		TicketCount: ticketCount,
		CheckedIn:   checkedIn,
	}, nil
}
