package tickets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ms-checkin/internal/clock"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	"ms-checkin/internal/utils"
)

const (
	DefaultCredentialTTL = 24 * time.Hour
	MaxCredentialTTL     = 7 * 24 * time.Hour
	maxAttempts          = 3
)

type TicketDBLayer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	IncrementTicketsSold(ctx context.Context, eventID string) (bool, error)
	UpsertEvent(ctx context.Context, event *models.Event) error

	GetTeamByID(ctx context.Context, id string) (*models.Team, error)
	GetTeamMembers(ctx context.Context, teamID string) ([]models.TeamMember, error)
	UpsertTeam(ctx context.Context, team *models.Team, members []models.TeamMember) error

	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	LockTicket(ctx context.Context, id string) error
	MarkTicketCheckedIn(ctx context.Context, id string, at time.Time, by string) (bool, error)
	GetTicketsByHolder(ctx context.Context, address string) ([]models.Ticket, error)
	GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error)
	CountTicketsByEvent(ctx context.Context, eventID string) (int, error)

	CreateQRToken(ctx context.Context, token *models.QRToken) error
	GetQRTokenByHash(ctx context.Context, hash string) (*models.QRToken, error)
	GetQRTokensByTicket(ctx context.Context, ticketID string) ([]models.QRToken, error)
	RevokeLiveQRTokens(ctx context.Context, ticketID string, now time.Time) (int, error)
	RevokeQRToken(ctx context.Context, id string, now time.Time) (bool, error)

	CreateCheckIn(ctx context.Context, checkIn *models.CheckIn) error
	GetCheckInByTicket(ctx context.Context, ticketID string) (*models.CheckIn, error)
	GetCheckInsByEvent(ctx context.Context, eventID string) ([]models.CheckIn, error)
	CountCheckInsByEvent(ctx context.Context, eventID string) (int, error)
}

// EventPublisher announces committed changes. Publishing failures never undo
// the change; they are logged.
type EventPublisher interface {
	PublishTicketPurchased(ctx context.Context, event models.TicketPurchasedEvent) error
	PublishQRIssued(ctx context.Context, event models.QRIssuedEvent) error
	PublishTicketCheckedIn(ctx context.Context, event models.TicketCheckedInEvent) error
}

// CheckInFeed receives every successful check-in for live dashboards.
type CheckInFeed interface {
	EmitCheckIn(event models.TicketCheckedInEvent)
}

type TicketService struct {
	DB            TicketDBLayer
	Organizers    *OrganizerResolver
	Publisher     EventPublisher
	Feed          CheckInFeed
	Clock         clock.Clock
	Logger        *logger.Logger
	CredentialTTL time.Duration
}

func NewTicketService(store TicketDBLayer, log *logger.Logger) *TicketService {
	if log == nil {
		log = logger.NewLoggerWithWriter(io.Discard)
	}
	return &TicketService{
		DB:            store,
		Organizers:    NewOrganizerResolver(store, nil, log),
		Clock:         clock.NewSystem(),
		Logger:        log,
		CredentialTTL: DefaultCredentialTTL,
	}
}

type PurchaseRequest struct {
	EventID       string  `json:"event_id"`
	HolderAddress string  `json:"holder_address"`
	PricePaid     float64 `json:"price_paid"`
	SettlementRef string  `json:"settlement_ref"`
	AgentID       string  `json:"agent_id,omitempty"`
	OwnerID       string  `json:"owner_id,omitempty"`
}

// PurchaseReceipt is returned once per purchase. Secret is only ever present here.
type PurchaseReceipt struct {
	Ticket     *models.Ticket    `json:"ticket"`
	Credential *IssuedCredential `json:"credential,omitempty"`
}

// runAtomic runs fn as one transaction and retries the whole unit on
// transient store conflicts only.
func (s *TicketService) runAtomic(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.DB.WithTx(ctx, fn)
		if err == nil || !db.IsTransient(err) {
			return err
		}
		s.Logger.Warn("DATABASE", fmt.Sprintf("%s hit a transient conflict (attempt %d/%d): %v", op, attempt, maxAttempts, err))
	}
	return err
}

// RecordPurchase converts a confirmed payment into a ticket without overselling.
// The recorded price is the event's listed price read inside the transaction.
func (s *TicketService) RecordPurchase(ctx context.Context, req PurchaseRequest) (*models.Ticket, error) {
	if err := validatePurchase(req); err != nil {
		return nil, err
	}

	var ticket *models.Ticket
	err := s.runAtomic(ctx, "record purchase", func(ctx context.Context) error {
		var err error
		ticket, err = s.recordPurchaseTx(ctx, req)
		return err
	})
	if err != nil {
		s.logPurchaseFailure(req, err)
		return nil, err
	}

	s.afterPurchase(ctx, req, ticket)
	return ticket, nil
}

// RecordPurchaseAndIssue records the purchase and issues the first credential
// for the holder in the same transaction.
func (s *TicketService) RecordPurchaseAndIssue(ctx context.Context, req PurchaseRequest) (*PurchaseReceipt, error) {
	if err := validatePurchase(req); err != nil {
		return nil, err
	}
	owner := req.OwnerID
	if owner == "" {
		owner = utils.NormalizeAddress(req.HolderAddress)
	}

	var receipt *PurchaseReceipt
	err := s.runAtomic(ctx, "record purchase and issue", func(ctx context.Context) error {
		ticket, err := s.recordPurchaseTx(ctx, req)
		if err != nil {
			return err
		}
		cred, err := s.issueCredentialTx(ctx, ticket, owner, s.CredentialTTL)
		if err != nil {
			return err
		}
		receipt = &PurchaseReceipt{Ticket: ticket, Credential: cred}
		return nil
	})
	if err != nil {
		s.logPurchaseFailure(req, err)
		return nil, err
	}

	s.afterPurchase(ctx, req, receipt.Ticket)
	s.afterIssue(ctx, receipt.Credential)
	return receipt, nil
}

// HandlePaymentConfirmed is the entry point for settled payments arriving
// from the payment collaborator. No credential is issued here: a secret
// minted on this path would reach nobody. The holder issues the first one
// through the credential endpoint.
func (s *TicketService) HandlePaymentConfirmed(ctx context.Context, evt models.PaymentConfirmedEvent) error {
	_, err := s.RecordPurchase(ctx, PurchaseRequest{
		EventID:       evt.EventID,
		HolderAddress: evt.HolderAddress,
		PricePaid:     evt.PricePaid,
		SettlementRef: evt.SettlementRef,
		AgentID:       evt.AgentID,
	})
	if isBusinessError(err) {
		// A sold out or closed event is a final answer for this payment.
		s.Logger.Warn("TICKET", fmt.Sprintf("payment %s not converted into a ticket: %v", evt.SettlementRef, err))
		return nil
	}
	return err
}

func (s *TicketService) recordPurchaseTx(ctx context.Context, req PurchaseRequest) (*models.Ticket, error) {
	reserved, err := s.DB.IncrementTicketsSold(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("reserve slot on event %s: %w", req.EventID, err)
	}

	event, err := s.DB.GetEventByID(ctx, req.EventID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", req.EventID, err)
	}
	if !reserved {
		if event.Status != models.EventStatusActive {
			return nil, ErrEventNotActive
		}
		return nil, ErrSoldOut
	}

	ticket := &models.Ticket{
		ID:            utils.GenerateID(),
		Code:          utils.GenerateTicketCode(),
		EventID:       event.ID,
		HolderAddress: utils.NormalizeAddress(req.HolderAddress),
		AgentID:       req.AgentID,
		PricePaid:     event.Price,
		SettlementRef: req.SettlementRef,
		Status:        models.TicketStatusActive,
		PurchasedAt:   s.Clock.Now(),
	}
	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

func (s *TicketService) afterPurchase(ctx context.Context, req PurchaseRequest, ticket *models.Ticket) {
	if req.PricePaid != 0 && req.PricePaid != ticket.PricePaid {
		s.Logger.LogSecurity("PRICE_MISMATCH", fmt.Sprintf("ticket %s: caller reported %.2f, listed price %.2f recorded", ticket.ID, req.PricePaid, ticket.PricePaid))
	}
	s.Logger.LogTicket("PURCHASED", ticket.ID, fmt.Sprintf("event %s holder %s", ticket.EventID, ticket.HolderAddress))

	if s.Publisher == nil {
		return
	}
	err := s.Publisher.PublishTicketPurchased(ctx, models.TicketPurchasedEvent{
		TicketID:      ticket.ID,
		EventID:       ticket.EventID,
		HolderAddress: ticket.HolderAddress,
		PricePaid:     ticket.PricePaid,
		SettlementRef: ticket.SettlementRef,
		PurchasedAt:   ticket.PurchasedAt,
	})
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish purchase of ticket %s: %v", ticket.ID, err))
	}
}

func (s *TicketService) logPurchaseFailure(req PurchaseRequest, err error) {
	if isBusinessError(err) {
		s.Logger.Info("TICKET", fmt.Sprintf("purchase on event %s rejected: %v", req.EventID, err))
		return
	}
	s.Logger.Error("TICKET", fmt.Sprintf("purchase on event %s failed: %v", req.EventID, err))
}

func validatePurchase(req PurchaseRequest) error {
	if req.EventID == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidRequest)
	}
	if utils.NormalizeAddress(req.HolderAddress) == "" {
		return fmt.Errorf("%w: holder_address is required", ErrInvalidRequest)
	}
	if req.SettlementRef == "" {
		return fmt.Errorf("%w: settlement_ref is required", ErrInvalidRequest)
	}
	return nil
}

func isBusinessError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrEventNotActive) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrInvalidRequest)
}
