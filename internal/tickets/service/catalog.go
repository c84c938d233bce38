package tickets

import (
	"context"
	"fmt"

	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

// SyncEvent stores the catalog's view of an event. The sold counter stays
// under the purchase transaction's control, and capacity is never lowered
// below it.
func (s *TicketService) SyncEvent(ctx context.Context, evt models.EventUpsertedEvent) error {
	if evt.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidRequest)
	}
	if !models.IsValidEventStatus(evt.Status) {
		return fmt.Errorf("%w: unknown event status %q", ErrInvalidRequest, evt.Status)
	}
	if evt.MaxTickets < 0 {
		return fmt.Errorf("%w: max_tickets must not be negative", ErrInvalidRequest)
	}

	event := &models.Event{
		ID:             evt.ID,
		Name:           evt.Name,
		Location:       evt.Location,
		Status:         evt.Status,
		Price:          evt.Price,
		MaxTickets:     evt.MaxTickets,
		TeamID:         evt.TeamID,
		CreatorAddress: utils.NormalizeAddress(evt.CreatorAddress),
		StartsAt:       utils.UnixMillisToTime(evt.StartTime),
		EndsAt:         utils.UnixMillisToTime(evt.EndTime),
		UpdatedAt:      s.Clock.Now(),
	}
	if err := s.DB.UpsertEvent(ctx, event); err != nil {
		return err
	}
	if event.MaxTickets != evt.MaxTickets {
		s.Logger.Warn("TICKET", fmt.Sprintf("event %s: catalog capacity %d is below %d sold, keeping %d", event.ID, evt.MaxTickets, event.TicketsSold, event.MaxTickets))
	}
	s.Logger.LogDatabase("UPSERT", "events", fmt.Sprintf("event %s is %s (%d max)", event.ID, event.Status, event.MaxTickets))
	return nil
}

// SyncTeam stores a team with its members and drops its cached organizer set.
func (s *TicketService) SyncTeam(ctx context.Context, evt models.TeamUpsertedEvent) error {
	if evt.ID == "" {
		return fmt.Errorf("%w: team id is required", ErrInvalidRequest)
	}

	team := &models.Team{
		ID:            evt.ID,
		Name:          evt.Name,
		WalletAddress: utils.NormalizeAddress(evt.WalletAddress),
		UpdatedAt:     s.Clock.Now(),
	}
	addresses := utils.NormalizeAddresses(evt.Members)
	members := make([]models.TeamMember, 0, len(addresses))
	for _, addr := range addresses {
		members = append(members, models.TeamMember{TeamID: evt.ID, Address: addr})
	}

	if err := s.DB.UpsertTeam(ctx, team, members); err != nil {
		return err
	}
	s.Organizers.InvalidateTeam(ctx, team.ID)
	s.Logger.LogDatabase("UPSERT", "teams", fmt.Sprintf("team %s with %d member(s)", team.ID, len(members)))
	return nil
}
