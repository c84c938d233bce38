package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	"ms-checkin/internal/utils"
)

const (
	MethodCode  = "code"
	MethodToken = "token"
)

// errScanRejected rolls back a check-in transaction that lost a race.
var errScanRejected = errors.New("check-in rejected")

// ScanForCheckIn checks a ticket in by its stable code. The scanner must be an
// admin or hold one of the event's organizer addresses.
func (s *TicketService) ScanForCheckIn(ctx context.Context, code string, scanner models.Identity) (*ScanResult, error) {
	if code == "" {
		return rejected(StatusNotFound, "Ticket not found"), nil
	}
	ticket, err := s.DB.GetTicketByCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return rejected(StatusNotFound, "Ticket not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket by code: %w", err)
	}

	event, err := s.DB.GetEventByID(ctx, ticket.EventID)
	if errors.Is(err, db.ErrNotFound) {
		return rejected(StatusNotFound, "Event not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", ticket.EventID, err)
	}

	// Outsiders learn nothing about the ticket, whatever state the event is in.
	allowed, err := s.Organizers.CanManageEvent(ctx, event, scanner)
	if err != nil {
		return nil, fmt.Errorf("resolve organizers of event %s: %w", event.ID, err)
	}
	if !allowed {
		s.Logger.LogSecurity("UNAUTHORIZED_SCAN", fmt.Sprintf("%s tried to check in ticket %s of event %s", scanner.Actor(), ticket.ID, event.ID))
		return rejected(StatusUnauthorized, "Not authorized to check in tickets for this event"), nil
	}
	if event.Status != models.EventStatusActive {
		return s.withTicket(rejected(StatusInactive, "Event is not active"), ticket), nil
	}

	if ticket.Status != models.TicketStatusActive {
		return s.withTicket(rejected(StatusInactive, inactiveMessage(ticket.Status)), ticket), nil
	}
	if res, err := s.alreadyCheckedIn(ctx, ticket); res != nil || err != nil {
		return res, err
	}

	now := s.Clock.Now()
	actor := scanner.Actor()
	err = s.runAtomic(ctx, "scan check-in", func(ctx context.Context) error {
		marked, err := s.DB.MarkTicketCheckedIn(ctx, ticket.ID, now, actor)
		if err != nil {
			return err
		}
		if !marked {
			return errScanRejected
		}
		err = s.DB.CreateCheckIn(ctx, &models.CheckIn{
			ID:          utils.GenerateID(),
			TicketID:    ticket.ID,
			EventID:     ticket.EventID,
			CheckedInAt: now,
			CheckedInBy: actor,
		})
		if errors.Is(err, db.ErrDuplicate) {
			return errScanRejected
		}
		if err != nil {
			return err
		}
		// The ticket is spent; outstanding credentials must not be usable.
		_, err = s.DB.RevokeLiveQRTokens(ctx, ticket.ID, now)
		return err
	})
	if errors.Is(err, errScanRejected) {
		return s.resolveLostRace(ctx, ticket.ID, false)
	}
	if err != nil {
		return nil, fmt.Errorf("check in ticket %s: %w", ticket.ID, err)
	}

	return s.completeCheckIn(ctx, ticket, now, actor, MethodCode), nil
}

// ValidateAndCheckIn checks a ticket in by a presented bearer secret. The
// checker was authenticated upstream.
func (s *TicketService) ValidateAndCheckIn(ctx context.Context, secret string, checker models.Identity) (*ScanResult, error) {
	if secret == "" {
		return rejected(StatusInvalid, "QR token not found"), nil
	}
	token, err := s.DB.GetQRTokenByHash(ctx, utils.DigestSecret(secret))
	if errors.Is(err, db.ErrNotFound) {
		return rejected(StatusInvalid, "QR token not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up credential: %w", err)
	}

	now := s.Clock.Now()
	if !token.Live(now) {
		// A credential consumed by a check-in reports the original check-in.
		if ticket, err := s.DB.GetTicketByID(ctx, token.TicketID); err == nil {
			if res, err := s.alreadyCheckedIn(ctx, ticket); res != nil || err != nil {
				return res, err
			}
		} else if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("load ticket %s: %w", token.TicketID, err)
		}
		return expired(token), nil
	}

	ticket, err := s.DB.GetTicketByID(ctx, token.TicketID)
	if errors.Is(err, db.ErrNotFound) {
		return rejected(StatusInvalid, "Ticket not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", token.TicketID, err)
	}
	if res, err := s.alreadyCheckedIn(ctx, ticket); res != nil || err != nil {
		return res, err
	}
	if ticket.Status != models.TicketStatusActive {
		return s.withTicket(rejected(StatusInactive, inactiveMessage(ticket.Status)), ticket), nil
	}

	actor := checker.Actor()
	// Same write order as the code path and re-issue: ticket row first.
	err = s.runAtomic(ctx, "token check-in", func(ctx context.Context) error {
		marked, err := s.DB.MarkTicketCheckedIn(ctx, ticket.ID, now, actor)
		if err != nil {
			return err
		}
		if !marked {
			return errScanRejected
		}
		err = s.DB.CreateCheckIn(ctx, &models.CheckIn{
			ID:          utils.GenerateID(),
			TicketID:    ticket.ID,
			EventID:     ticket.EventID,
			CheckedInAt: now,
			CheckedInBy: actor,
			QRTokenID:   token.ID,
		})
		if errors.Is(err, db.ErrDuplicate) {
			return errScanRejected
		}
		if err != nil {
			return err
		}
		revoked, err := s.DB.RevokeQRToken(ctx, token.ID, now)
		if err != nil {
			return err
		}
		if !revoked {
			return errScanRejected
		}
		return nil
	})
	if errors.Is(err, errScanRejected) {
		return s.resolveLostRace(ctx, ticket.ID, true)
	}
	if err != nil {
		return nil, fmt.Errorf("check in ticket %s: %w", ticket.ID, err)
	}

	return s.completeCheckIn(ctx, ticket, now, actor, MethodToken), nil
}

// alreadyCheckedIn returns an AlreadyCheckedIn result when the ticket carries
// a check-in timestamp or has a check-in record, and nil otherwise.
func (s *TicketService) alreadyCheckedIn(ctx context.Context, ticket *models.Ticket) (*ScanResult, error) {
	at := ticket.CheckedInAt
	if at == nil {
		record, err := s.DB.GetCheckInByTicket(ctx, ticket.ID)
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load check-in of ticket %s: %w", ticket.ID, err)
		}
		at = &record.CheckedInAt
	}
	res := s.withTicket(rejected(StatusAlreadyCheckedIn, "Ticket already checked in"), ticket)
	res.CheckedInAt = at
	return res, nil
}

// resolveLostRace explains why a check-in transaction was rolled back by
// reading the state the winning transaction left behind.
func (s *TicketService) resolveLostRace(ctx context.Context, ticketID string, viaToken bool) (*ScanResult, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("reload ticket %s: %w", ticketID, err)
	}
	if res, err := s.alreadyCheckedIn(ctx, ticket); res != nil || err != nil {
		return res, err
	}
	if ticket.Status != models.TicketStatusActive {
		return s.withTicket(rejected(StatusInactive, inactiveMessage(ticket.Status)), ticket), nil
	}
	if viaToken {
		// The credential was revoked by a concurrent re-issue.
		return s.withTicket(rejected(StatusExpired, "QR token expired or revoked"), ticket), nil
	}
	return nil, fmt.Errorf("check-in of ticket %s was rejected without a visible cause", ticketID)
}

func (s *TicketService) completeCheckIn(ctx context.Context, ticket *models.Ticket, at time.Time, actor, method string) *ScanResult {
	s.Logger.LogCheckIn(string(StatusValid), ticket.ID, fmt.Sprintf("event %s by %s via %s", ticket.EventID, actor, method))

	evt := models.TicketCheckedInEvent{
		TicketID:      ticket.ID,
		EventID:       ticket.EventID,
		HolderAddress: ticket.HolderAddress,
		CheckedInAt:   at,
		CheckedInBy:   actor,
		Method:        method,
	}
	if s.Feed != nil {
		s.Feed.EmitCheckIn(evt)
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishTicketCheckedIn(ctx, evt); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish check-in of ticket %s: %v", ticket.ID, err))
		}
	}

	res := s.withTicket(&ScanResult{OK: true, Status: StatusValid, Message: "Check-in complete"}, ticket)
	res.CheckedInAt = &at
	return res
}

func (s *TicketService) withTicket(res *ScanResult, ticket *models.Ticket) *ScanResult {
	res.TicketID = ticket.ID
	res.EventID = ticket.EventID
	res.HolderAddress = ticket.HolderAddress
	return res
}

func expired(token *models.QRToken) *ScanResult {
	res := rejected(StatusExpired, "QR token expired or revoked")
	res.TicketID = token.TicketID
	res.EventID = token.EventID
	return res
}

func inactiveMessage(status string) string {
	switch status {
	case models.TicketStatusListed:
		return "Ticket is listed for resale"
	case models.TicketStatusTransferred:
		return "Ticket has been transferred"
	case models.TicketStatusRefunded:
		return "Ticket has been refunded"
	}
	return fmt.Sprintf("Ticket is %s", status)
}
