package tickets

import (
	"context"
	"errors"
	"fmt"

	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	"ms-checkin/internal/utils"
)

// GetTicket returns a ticket to its holder or an admin.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string, caller models.Identity) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, err)
	}
	if !caller.Admin && !caller.HasAddress(ticket.HolderAddress) {
		return nil, ErrForbidden
	}
	return ticket, nil
}

// ListTicketsByHolder lists the tickets held by an address. Only that address
// or an admin may ask.
func (s *TicketService) ListTicketsByHolder(ctx context.Context, address string, caller models.Identity) ([]models.Ticket, error) {
	address = utils.NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("%w: holder address is required", ErrInvalidRequest)
	}
	if !caller.Admin && !caller.HasAddress(address) {
		return nil, ErrForbidden
	}
	tickets, err := s.DB.GetTicketsByHolder(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for holder %s: %w", address, err)
	}
	return tickets, nil
}

// ListTicketsByEvent is restricted to admins.
func (s *TicketService) ListTicketsByEvent(ctx context.Context, eventID string, caller models.Identity) ([]models.Ticket, error) {
	if !caller.Admin {
		return nil, ErrForbidden
	}
	tickets, err := s.DB.GetTicketsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for event %s: %w", eventID, err)
	}
	return tickets, nil
}

// ListCheckInsByEvent returns the event's door log, oldest first, to its
// organizers and admins.
func (s *TicketService) ListCheckInsByEvent(ctx context.Context, eventID string, caller models.Identity) ([]models.CheckIn, error) {
	if _, err := s.AuthorizeOrganizer(ctx, eventID, caller); err != nil {
		return nil, err
	}
	checkIns, err := s.DB.GetCheckInsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch check-ins for event %s: %w", eventID, err)
	}
	return checkIns, nil
}

// AuthorizeOrganizer loads the event and checks the caller may manage it.
func (s *TicketService) AuthorizeOrganizer(ctx context.Context, eventID string, caller models.Identity) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, eventID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", eventID, err)
	}
	ok, err := s.Organizers.CanManageEvent(ctx, event, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return event, nil
}
