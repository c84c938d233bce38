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

// IssuedCredential carries the plaintext secret. It is returned exactly once
// and cannot be recovered from storage afterwards.
type IssuedCredential struct {
	TokenID   string    `json:"token_id"`
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	Secret    string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// IssueCredential mints a new bearer credential for the ticket and revokes
// every credential of the ticket that is still live. eventID may be empty; if
// set it must match the ticket. A ttl of zero yields an already expired credential.
// Calling it again is safe: only the newest secret stays usable.
func (s *TicketService) IssueCredential(ctx context.Context, ticketID, eventID, ownerID string, ttl time.Duration) (*IssuedCredential, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("%w: ticket_id is required", ErrInvalidRequest)
	}
	if ttl < 0 || ttl > MaxCredentialTTL {
		return nil, fmt.Errorf("%w: ttl must be between 0 and %s", ErrInvalidRequest, MaxCredentialTTL)
	}

	var cred *IssuedCredential
	err := s.runAtomic(ctx, "issue credential", func(ctx context.Context) error {
		if err := s.DB.LockTicket(ctx, ticketID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrTicketNotFound
			}
			return fmt.Errorf("lock ticket %s: %w", ticketID, err)
		}
		ticket, err := s.DB.GetTicketByID(ctx, ticketID)
		if errors.Is(err, db.ErrNotFound) {
			return ErrTicketNotFound
		}
		if err != nil {
			return fmt.Errorf("load ticket %s: %w", ticketID, err)
		}
		if eventID != "" && eventID != ticket.EventID {
			return fmt.Errorf("%w: ticket %s does not belong to event %s", ErrInvalidRequest, ticketID, eventID)
		}
		cred, err = s.issueCredentialTx(ctx, ticket, ownerID, ttl)
		return err
	})
	if err != nil {
		s.Logger.Warn("QR", fmt.Sprintf("credential issuance for ticket %s failed: %v", ticketID, err))
		return nil, err
	}

	s.afterIssue(ctx, cred)
	return cred, nil
}

func (s *TicketService) issueCredentialTx(ctx context.Context, ticket *models.Ticket, ownerID string, ttl time.Duration) (*IssuedCredential, error) {
	now := s.Clock.Now()

	revoked, err := s.DB.RevokeLiveQRTokens(ctx, ticket.ID, now)
	if err != nil {
		return nil, fmt.Errorf("revoke live credentials of ticket %s: %w", ticket.ID, err)
	}
	if revoked > 0 {
		s.Logger.Debug("QR", fmt.Sprintf("revoked %d live credential(s) of ticket %s", revoked, ticket.ID))
	}

	secret := utils.GenerateSecret()
	token := &models.QRToken{
		ID:        utils.GenerateID(),
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		OwnerID:   ownerID,
		TokenHash: utils.DigestSecret(secret),
		ExpiresAt: now.Add(ttl),
		IssuedAt:  now,
	}
	if err := s.DB.CreateQRToken(ctx, token); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	return &IssuedCredential{
		TokenID:   token.ID,
		TicketID:  token.TicketID,
		EventID:   token.EventID,
		Secret:    secret,
		ExpiresAt: token.ExpiresAt,
		IssuedAt:  token.IssuedAt,
	}, nil
}

func (s *TicketService) afterIssue(ctx context.Context, cred *IssuedCredential) {
	s.Logger.Info("QR", fmt.Sprintf("issued credential %s for ticket %s (expires %s)", cred.TokenID, cred.TicketID, cred.ExpiresAt.Format(time.RFC3339)))

	if s.Publisher == nil {
		return
	}
	err := s.Publisher.PublishQRIssued(ctx, models.QRIssuedEvent{
		TokenID:   cred.TokenID,
		TicketID:  cred.TicketID,
		EventID:   cred.EventID,
		ExpiresAt: cred.ExpiresAt,
		IssuedAt:  cred.IssuedAt,
	})
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish credential %s: %v", cred.TokenID, err))
	}
}

// GetActiveCredential returns the metadata of the ticket's live credential.
// The secret is not part of it.
func (s *TicketService) GetActiveCredential(ctx context.Context, ticketID string) (*models.QRToken, error) {
	tokens, err := s.DB.GetQRTokensByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load credentials of ticket %s: %w", ticketID, err)
	}
	now := s.Clock.Now()
	for i := range tokens {
		if tokens[i].Live(now) {
			return &tokens[i], nil
		}
	}
	return nil, ErrCredentialNotFound
}
