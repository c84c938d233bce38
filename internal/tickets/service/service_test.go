package tickets_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	"ms-checkin/internal/tickets/db/testdb"
	tickets "ms-checkin/internal/tickets/service"
	"ms-checkin/internal/utils"
)

var startTime = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

// stepClock is a clock tests can move forward.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockPublisher is a mock implementation of the EventPublisher interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTicketPurchased(ctx context.Context, event models.TicketPurchasedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishQRIssued(ctx context.Context, event models.QRIssuedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishTicketCheckedIn(ctx context.Context, event models.TicketCheckedInEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingFeed struct {
	mu     sync.Mutex
	events []models.TicketCheckedInEvent
}

func (f *recordingFeed) EmitCheckIn(event models.TicketCheckedInEvent) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

type fixture struct {
	store *db.DB
	svc   *tickets.TicketService
	clock *stepClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testdb.Open(t)
	svc := tickets.NewTicketService(store, logger.NewLoggerWithWriter(io.Discard))
	clk := &stepClock{now: startTime}
	svc.Clock = clk
	return &fixture{store: store, svc: svc, clock: clk}
}

func (f *fixture) event(t *testing.T, mutate func(e *models.Event)) *models.Event {
	t.Helper()
	event := &models.Event{
		ID:             uuid.NewString(),
		Name:           "Rooftop Session",
		Status:         models.EventStatusActive,
		Price:          25,
		MaxTickets:     100,
		CreatorAddress: "0xcreator",
		UpdatedAt:      startTime,
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, f.store.UpsertEvent(context.Background(), event))
	return event
}

func (f *fixture) purchase(t *testing.T, eventID string) *tickets.PurchaseReceipt {
	t.Helper()
	receipt, err := f.svc.RecordPurchaseAndIssue(context.Background(), tickets.PurchaseRequest{
		EventID:       eventID,
		HolderAddress: "0xHolder",
		PricePaid:     25,
		SettlementRef: "0x" + uuid.NewString(),
	})
	require.NoError(t, err)
	return receipt
}

var creator = models.Identity{UserID: "creator", Addresses: []string{"0xcreator"}}

func TestRecordPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, nil)

	ticket, err := f.svc.RecordPurchase(ctx, tickets.PurchaseRequest{
		EventID:       event.ID,
		HolderAddress: "0xABCdef",
		PricePaid:     1, // tampered; the listed price wins
		SettlementRef: "0xsettle",
		AgentID:       "agent-7",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TicketStatusActive, ticket.Status)
	assert.Equal(t, "0xabcdef", ticket.HolderAddress)
	assert.Equal(t, 25.0, ticket.PricePaid)
	assert.Equal(t, "agent-7", ticket.AgentID)
	assert.Nil(t, ticket.CheckedInAt)
	assert.True(t, strings.HasPrefix(ticket.Code, utils.TicketCodePrefix))

	stored, err := f.store.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TicketsSold)
}

func TestRecordPurchaseErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.event(t, func(e *models.Event) { e.Status = models.EventStatusDraft })
	full := f.event(t, func(e *models.Event) { e.MaxTickets = 0 })

	req := func(eventID string) tickets.PurchaseRequest {
		return tickets.PurchaseRequest{EventID: eventID, HolderAddress: "0xholder", SettlementRef: "0xtx"}
	}

	_, err := f.svc.RecordPurchase(ctx, req("missing"))
	assert.ErrorIs(t, err, tickets.ErrEventNotFound)

	_, err = f.svc.RecordPurchase(ctx, req(draft.ID))
	assert.ErrorIs(t, err, tickets.ErrEventNotActive)

	_, err = f.svc.RecordPurchase(ctx, req(full.ID))
	assert.ErrorIs(t, err, tickets.ErrSoldOut)

	_, err = f.svc.RecordPurchase(ctx, tickets.PurchaseRequest{EventID: full.ID, SettlementRef: "0xtx"})
	assert.ErrorIs(t, err, tickets.ErrInvalidRequest)

	stored, err := f.store.GetEventByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TicketsSold)
}

func TestLastSlotGoesToExactlyOneBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, func(e *models.Event) { e.MaxTickets = 1 })

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.RecordPurchase(ctx, tickets.PurchaseRequest{
				EventID:       event.ID,
				HolderAddress: "0xbuyer",
				SettlementRef: uuid.NewString(),
			})
		}(i)
	}
	wg.Wait()

	var ok, soldOut int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, tickets.ErrSoldOut):
			soldOut++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, soldOut)

	stored, err := f.store.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TicketsSold)

	list, err := f.store.GetTicketsByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.TicketStatusActive, list[0].Status)
}

func TestNoOversellUnderLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, func(e *models.Event) { e.MaxTickets = 3 })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPurchaseAndIssue(ctx, tickets.PurchaseRequest{
				EventID:       event.ID,
				HolderAddress: "0xbuyer",
				SettlementRef: uuid.NewString(),
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, tickets.ErrSoldOut)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, success)
	stored, err := f.store.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.TicketsSold)

	count, err := f.store.CountTicketsByEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRecordPurchaseAndIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, nil)

	receipt := f.purchase(t, event.ID)

	require.NotNil(t, receipt.Credential)
	assert.True(t, strings.HasPrefix(receipt.Credential.Secret, utils.SecretPrefix))
	assert.Equal(t, receipt.Ticket.ID, receipt.Credential.TicketID)
	assert.True(t, receipt.Credential.ExpiresAt.Equal(startTime.Add(24*time.Hour)))

	active, err := f.svc.GetActiveCredential(ctx, receipt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Credential.TokenID, active.ID)
	assert.Equal(t, "0xholder", active.OwnerID)
}

func TestCredentialStoredAsDigestOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)
	secret := receipt.Credential.Secret

	_, err := f.store.GetQRTokenByHash(ctx, secret)
	assert.ErrorIs(t, err, db.ErrNotFound)

	token, err := f.store.GetQRTokenByHash(ctx, utils.DigestSecret(secret))
	require.NoError(t, err)
	assert.NotContains(t, token.TokenHash, strings.TrimPrefix(secret, utils.SecretPrefix))

	_, err = f.store.GetQRTokenByHash(ctx, utils.DigestSecret(utils.GenerateSecret()))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestSingleLiveCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)
	ticketID := receipt.Ticket.ID

	var last *tickets.IssuedCredential
	for i := 0; i < 4; i++ {
		f.clock.Advance(time.Minute)
		cred, err := f.svc.IssueCredential(ctx, ticketID, "", "", time.Hour)
		require.NoError(t, err)
		last = cred
	}

	all, err := f.store.GetQRTokensByTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Len(t, all, 5)

	live := 0
	for i := range all {
		if all[i].Live(f.clock.Now()) {
			live++
			assert.Equal(t, last.TokenID, all[i].ID)
		}
	}
	assert.Equal(t, 1, live)
}

func TestIssueCredentialErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)

	_, err := f.svc.IssueCredential(ctx, "missing", "", "", time.Hour)
	assert.ErrorIs(t, err, tickets.ErrTicketNotFound)

	_, err = f.svc.IssueCredential(ctx, receipt.Ticket.ID, "another-event", "", time.Hour)
	assert.ErrorIs(t, err, tickets.ErrInvalidRequest)

	_, err = f.svc.IssueCredential(ctx, receipt.Ticket.ID, "", "", -time.Second)
	assert.ErrorIs(t, err, tickets.ErrInvalidRequest)

	// the failed attempts left the original credential alone
	active, err := f.svc.GetActiveCredential(ctx, receipt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Credential.TokenID, active.ID)
}

func TestZeroTTLCredentialIsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)

	cred, err := f.svc.IssueCredential(ctx, receipt.Ticket.ID, receipt.Ticket.EventID, "", 0)
	require.NoError(t, err)

	res, err := f.svc.ValidateAndCheckIn(ctx, cred.Secret, creator)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, tickets.StatusExpired, res.Status)
	assert.Equal(t, receipt.Ticket.ID, res.TicketID)
	assert.Equal(t, receipt.Ticket.EventID, res.EventID)

	_, err = f.svc.GetActiveCredential(ctx, receipt.Ticket.ID)
	assert.ErrorIs(t, err, tickets.ErrCredentialNotFound)
}

func TestRepresentedSecretReportsOriginalCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)

	first, err := f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
	require.NoError(t, err)
	require.True(t, first.OK)
	assert.Equal(t, tickets.StatusValid, first.Status)
	require.NotNil(t, first.CheckedInAt)
	original := *first.CheckedInAt

	f.clock.Advance(10 * time.Minute)
	again, err := f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
	require.NoError(t, err)
	assert.False(t, again.OK)
	assert.Equal(t, tickets.StatusAlreadyCheckedIn, again.Status)
	require.NotNil(t, again.CheckedInAt)
	assert.True(t, again.CheckedInAt.Equal(original))

	record, err := f.store.GetCheckInByTicket(ctx, receipt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Credential.TokenID, record.QRTokenID)
	assert.Equal(t, "creator", record.CheckedInBy)
}

func TestReissueInvalidatesPreviousSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)

	f.clock.Advance(time.Minute)
	second, err := f.svc.IssueCredential(ctx, receipt.Ticket.ID, "", "", time.Hour)
	require.NoError(t, err)

	old, err := f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusExpired, old.Status)

	fresh, err := f.svc.ValidateAndCheckIn(ctx, second.Secret, creator)
	require.NoError(t, err)
	assert.True(t, fresh.OK)
	assert.Equal(t, tickets.StatusValid, fresh.Status)
}

func TestValidateUnknownSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ValidateAndCheckIn(ctx, utils.GenerateSecret(), creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusInvalid, res.Status)
	assert.Empty(t, res.TicketID)

	res, err = f.svc.ValidateAndCheckIn(ctx, "", creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusInvalid, res.Status)
}

func TestValidateRequiresActiveTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, nil)
	receipt := f.purchase(t, event.ID)

	_, err := f.store.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusRefunded).
		Where("id = ?", receipt.Ticket.ID).
		Exec(ctx)
	require.NoError(t, err)

	res, err := f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusInactive, res.Status)
	assert.Equal(t, "Ticket has been refunded", res.Message)
}

func TestScanForCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)

	res, err := f.svc.ScanForCheckIn(ctx, receipt.Ticket.Code, models.Identity{UserID: "door-1", Addresses: []string{"0xCREATOR"}})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, tickets.StatusValid, res.Status)
	assert.Equal(t, "0xholder", res.HolderAddress)
	require.NotNil(t, res.CheckedInAt)
	assert.True(t, res.CheckedInAt.Equal(startTime))

	ticket, err := f.store.GetTicketByID(ctx, receipt.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "door-1", ticket.CheckedInBy)

	record, err := f.store.GetCheckInByTicket(ctx, receipt.Ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, record.QRTokenID)

	_, err = f.svc.GetActiveCredential(ctx, receipt.Ticket.ID)
	assert.ErrorIs(t, err, tickets.ErrCredentialNotFound, "scan spends outstanding credentials")

	f.clock.Advance(time.Hour)
	again, err := f.svc.ScanForCheckIn(ctx, receipt.Ticket.Code, creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusAlreadyCheckedIn, again.Status)
	require.NotNil(t, again.CheckedInAt)
	assert.True(t, again.CheckedInAt.Equal(startTime))

	// the spent bearer secret now reports the check-in too
	viaToken, err := f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusAlreadyCheckedIn, viaToken.Status)
}

func TestScanNotFoundAndInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.ScanForCheckIn(ctx, "tk_missing", creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusNotFound, res.Status)

	event := f.event(t, nil)
	receipt := f.purchase(t, event.ID)
	event.Status = models.EventStatusEnded
	require.NoError(t, f.store.UpsertEvent(ctx, event))

	res, err = f.svc.ScanForCheckIn(ctx, receipt.Ticket.Code, creator)
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusInactive, res.Status)
	assert.Equal(t, "Event is not active", res.Message)

	for status, message := range map[string]string{
		models.TicketStatusListed:      "Ticket is listed for resale",
		models.TicketStatusTransferred: "Ticket has been transferred",
		models.TicketStatusRefunded:    "Ticket has been refunded",
	} {
		other := f.event(t, nil)
		r := f.purchase(t, other.ID)
		_, err := f.store.Bun.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("status = ?", status).
			Where("id = ?", r.Ticket.ID).
			Exec(ctx)
		require.NoError(t, err)

		res, err := f.svc.ScanForCheckIn(ctx, r.Ticket.Code, creator)
		require.NoError(t, err)
		assert.Equal(t, tickets.StatusInactive, res.Status, status)
		assert.Equal(t, message, res.Message)
	}
}

func TestScanAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SyncTeam(ctx, models.TeamUpsertedEvent{
		ID:            "team-1",
		Name:          "Door Crew",
		WalletAddress: "0xTEAMWALLET",
		Members:       []string{"0xMember1", "0xmember2"},
	}))
	teamEvent := f.event(t, func(e *models.Event) { e.TeamID = "team-1" })
	soloEvent := f.event(t, func(e *models.Event) { e.CreatorAddress = "0xsolo" })

	outsider := models.Identity{UserID: "outsider", Addresses: []string{"0xoutsider"}}

	cases := []struct {
		name    string
		event   *models.Event
		scanner models.Identity
		want    tickets.ScanStatus
	}{
		{"creator", teamEvent, models.Identity{Addresses: []string{"0xCreator"}}, tickets.StatusValid},
		{"team wallet", teamEvent, models.Identity{Addresses: []string{"0xteamwallet"}}, tickets.StatusValid},
		{"team member", teamEvent, models.Identity{Addresses: []string{"0xnobody", "0xMEMBER2"}}, tickets.StatusValid},
		{"admin", soloEvent, models.Identity{UserID: "root", Admin: true}, tickets.StatusValid},
		{"outsider", teamEvent, outsider, tickets.StatusUnauthorized},
		{"member of another team", soloEvent, models.Identity{Addresses: []string{"0xmember1"}}, tickets.StatusUnauthorized},
		{"no addresses", soloEvent, models.Identity{UserID: "anon"}, tickets.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			receipt := f.purchase(t, tc.event.ID)
			res, err := f.svc.ScanForCheckIn(ctx, receipt.Ticket.Code, tc.scanner)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
		})
	}
}

func TestUnauthorizedRegardlessOfTicketAndEventState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, nil)
	outsider := models.Identity{Addresses: []string{"0xoutsider"}}

	checkedIn := f.purchase(t, event.ID)
	res, err := f.svc.ScanForCheckIn(ctx, checkedIn.Ticket.Code, creator)
	require.NoError(t, err)
	require.True(t, res.OK)

	refunded := f.purchase(t, event.ID)
	_, err = f.store.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketStatusRefunded).
		Where("id = ?", refunded.Ticket.ID).
		Exec(ctx)
	require.NoError(t, err)

	codes := []string{checkedIn.Ticket.Code, refunded.Ticket.Code, f.purchase(t, event.ID).Ticket.Code}
	for _, status := range []string{models.EventStatusEnded, models.EventStatusCancelled} {
		closed := f.event(t, nil)
		code := f.purchase(t, closed.ID).Ticket.Code
		closed.Status = status
		require.NoError(t, f.store.UpsertEvent(ctx, closed))
		codes = append(codes, code)
	}

	for _, code := range codes {
		res, err := f.svc.ScanForCheckIn(ctx, code, outsider)
		require.NoError(t, err)
		assert.Equal(t, tickets.StatusUnauthorized, res.Status)
		assert.Empty(t, res.TicketID)
		assert.Empty(t, res.HolderAddress)
	}
}

func TestExactlyOnceCheckInUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	receipt := f.purchase(t, f.event(t, nil).ID)

	const attempts = 8
	results := make([]*tickets.ScanResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				results[i], err = f.svc.ScanForCheckIn(ctx, receipt.Ticket.Code, creator)
			} else {
				results[i], err = f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	valid, already := 0, 0
	for _, res := range results {
		require.NotNil(t, res)
		switch res.Status {
		case tickets.StatusValid:
			valid++
		case tickets.StatusAlreadyCheckedIn:
			already++
		default:
			t.Fatalf("unexpected status %s", res.Status)
		}
	}
	assert.Equal(t, 1, valid)
	assert.Equal(t, attempts-1, already)

	count, err := f.store.CountCheckInsByEvent(ctx, receipt.Ticket.EventID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPublishingAndFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	publisher := new(MockPublisher)
	feed := &recordingFeed{}
	f.svc.Publisher = publisher
	f.svc.Feed = feed
	event := f.event(t, nil)

	publisher.On("PublishTicketPurchased", mock.Anything, mock.MatchedBy(func(e models.TicketPurchasedEvent) bool {
		return e.EventID == event.ID && e.PricePaid == 25
	})).Return(nil).Once()
	publisher.On("PublishQRIssued", mock.Anything, mock.AnythingOfType("models.QRIssuedEvent")).Return(nil).Once()
	publisher.On("PublishTicketCheckedIn", mock.Anything, mock.MatchedBy(func(e models.TicketCheckedInEvent) bool {
		return e.Method == tickets.MethodToken && e.CheckedInBy == "creator"
	})).Return(errors.New("broker down")).Once()

	receipt := f.purchase(t, event.ID)
	res, err := f.svc.ValidateAndCheckIn(ctx, receipt.Credential.Secret, creator)
	require.NoError(t, err)
	assert.True(t, res.OK, "a publishing failure does not undo the check-in")

	publisher.AssertExpectations(t)
	require.Len(t, feed.events, 1)
	assert.Equal(t, receipt.Ticket.ID, feed.events[0].TicketID)
}

func TestHandlePaymentConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, func(e *models.Event) { e.MaxTickets = 1 })

	payment := models.PaymentConfirmedEvent{EventID: event.ID, HolderAddress: "0xbuyer", PricePaid: 25, SettlementRef: "0xpay1"}
	require.NoError(t, f.svc.HandlePaymentConfirmed(ctx, payment))

	payment.SettlementRef = "0xpay2"
	assert.NoError(t, f.svc.HandlePaymentConfirmed(ctx, payment), "sold out is final, not an error")

	list, err := f.store.GetTicketsByHolder(ctx, "0xbuyer")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "0xpay1", list[0].SettlementRef)

	_, err = f.svc.GetActiveCredential(ctx, list[0].ID)
	assert.ErrorIs(t, err, tickets.ErrCredentialNotFound, "payments never mint a secret nobody receives")

	cred, err := f.svc.IssueCredential(ctx, list[0].ID, event.ID, "0xbuyer", time.Hour)
	require.NoError(t, err)
	res, err := f.svc.ValidateAndCheckIn(ctx, cred.Secret, models.Identity{Admin: true})
	require.NoError(t, err)
	assert.Equal(t, tickets.StatusValid, res.Status)
}

func TestReadAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, nil)
	receipt := f.purchase(t, event.ID)

	holder := models.Identity{Addresses: []string{"0xHOLDER"}}
	stranger := models.Identity{Addresses: []string{"0xstranger"}}
	admin := models.Identity{Admin: true}

	got, err := f.svc.GetTicket(ctx, receipt.Ticket.ID, holder)
	require.NoError(t, err)
	assert.Equal(t, receipt.Ticket.Code, got.Code)

	_, err = f.svc.GetTicket(ctx, receipt.Ticket.ID, stranger)
	assert.ErrorIs(t, err, tickets.ErrForbidden)

	_, err = f.svc.GetTicket(ctx, "missing", admin)
	assert.ErrorIs(t, err, tickets.ErrTicketNotFound)

	list, err := f.svc.ListTicketsByHolder(ctx, "0xHolder", holder)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListTicketsByHolder(ctx, "0xholder", stranger)
	assert.ErrorIs(t, err, tickets.ErrForbidden)

	list, err = f.svc.ListTicketsByHolder(ctx, "0xholder", admin)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListTicketsByEvent(ctx, event.ID, creator)
	assert.ErrorIs(t, err, tickets.ErrForbidden)

	list, err = f.svc.ListTicketsByEvent(ctx, event.ID, admin)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetEventStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, func(e *models.Event) { e.MaxTickets = 5 })

	first := f.purchase(t, event.ID)
	f.purchase(t, event.ID)
	_, err := f.svc.ScanForCheckIn(ctx, first.Ticket.Code, creator)
	require.NoError(t, err)

	stats, err := f.svc.GetEventStats(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStats{
		EventID:     event.ID,
		MaxTickets:  5,
		TicketsSold: 2,
		Remaining:   3,
		TicketCount: 2,
		CheckedIn:   1,
	}, *stats)

	_, err = f.svc.GetEventStats(ctx, "missing")
	assert.ErrorIs(t, err, tickets.ErrEventNotFound)

	_, err = f.svc.AuthorizeOrganizer(ctx, event.ID, models.Identity{Addresses: []string{"0xoutsider"}})
	assert.ErrorIs(t, err, tickets.ErrForbidden)

	got, err := f.svc.AuthorizeOrganizer(ctx, event.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)
}

func TestListCheckInsByEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, nil)

	first := f.purchase(t, event.ID)
	second := f.purchase(t, event.ID)
	_, err := f.svc.ScanForCheckIn(ctx, first.Ticket.Code, creator)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	res, err := f.svc.ValidateAndCheckIn(ctx, second.Credential.Secret, creator)
	require.NoError(t, err)
	require.Equal(t, tickets.StatusValid, res.Status)

	list, err := f.svc.ListCheckInsByEvent(ctx, event.ID, creator)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Ticket.ID, list[0].TicketID)
	assert.Empty(t, list[0].QRTokenID)
	assert.Equal(t, second.Ticket.ID, list[1].TicketID)
	assert.Equal(t, second.Credential.TokenID, list[1].QRTokenID)

	_, err = f.svc.ListCheckInsByEvent(ctx, event.ID, models.Identity{Addresses: []string{"0xoutsider"}})
	assert.ErrorIs(t, err, tickets.ErrForbidden)

	_, err = f.svc.ListCheckInsByEvent(ctx, "missing", creator)
	assert.ErrorIs(t, err, tickets.ErrEventNotFound)
}

func TestSyncEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SyncEvent(ctx, models.EventUpsertedEvent{
		ID:             "evt-1",
		Name:           "Synced",
		Status:         models.EventStatusActive,
		Price:          10,
		MaxTickets:     2,
		CreatorAddress: "0xCreator",
		StartTime:      1700000000000,
	}))
	stored, err := f.store.GetEventByID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "0xcreator", stored.CreatorAddress)
	assert.Equal(t, int64(1700000000000), stored.StartsAt.UnixMilli())

	assert.ErrorIs(t, f.svc.SyncEvent(ctx, models.EventUpsertedEvent{ID: "evt-2", Status: "paused"}), tickets.ErrInvalidRequest)
	assert.ErrorIs(t, f.svc.SyncTeam(ctx, models.TeamUpsertedEvent{}), tickets.ErrInvalidRequest)
}

func TestSyncEventKeepsCapacityAboveSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, func(e *models.Event) { e.MaxTickets = 3 })
	f.purchase(t, event.ID)
	f.purchase(t, event.ID)

	require.NoError(t, f.svc.SyncEvent(ctx, models.EventUpsertedEvent{
		ID:             event.ID,
		Name:           event.Name,
		Status:         models.EventStatusActive,
		Price:          event.Price,
		MaxTickets:     1,
		CreatorAddress: event.CreatorAddress,
	}))

	stored, err := f.store.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TicketsSold)
	assert.Equal(t, 2, stored.MaxTickets)
	assert.LessOrEqual(t, stored.TicketsSold, stored.MaxTickets)

	_, err = f.svc.RecordPurchase(ctx, tickets.PurchaseRequest{EventID: event.ID, HolderAddress: "0xlate", SettlementRef: "0xlate"})
	assert.ErrorIs(t, err, tickets.ErrSoldOut)

	require.NoError(t, f.svc.SyncEvent(ctx, models.EventUpsertedEvent{
		ID:             event.ID,
		Status:         models.EventStatusActive,
		MaxTickets:     5,
		CreatorAddress: event.CreatorAddress,
	}))
	stored, err = f.store.GetEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.MaxTickets, "raising capacity is applied as sent")
}

// flakyDB fails the first transactions with a transient store error.
type flakyDB struct {
	*db.DB
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyDB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("database is locked")
	}
	return f.DB.WithTx(ctx, fn)
}

func TestTransientConflictsAreRetried(t *testing.T) {
	store := testdb.Open(t)
	ctx := context.Background()
	flaky := &flakyDB{DB: store, failures: 2}
	svc := tickets.NewTicketService(flaky, logger.NewLoggerWithWriter(io.Discard))

	event := &models.Event{ID: "evt", Name: "x", Status: models.EventStatusActive, MaxTickets: 5, UpdatedAt: startTime}
	require.NoError(t, store.UpsertEvent(ctx, event))
	req := tickets.PurchaseRequest{EventID: "evt", HolderAddress: "0xa", SettlementRef: "0xtx"}

	_, err := svc.RecordPurchase(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)

	flaky.failures, flaky.calls = 3, 0
	_, err = svc.RecordPurchase(ctx, req)
	assert.Error(t, err)
	assert.True(t, db.IsTransient(err))
	assert.Equal(t, 3, flaky.calls)

	flaky.calls = 0
	_, err = svc.RecordPurchase(ctx, tickets.PurchaseRequest{EventID: "missing", HolderAddress: "0xa", SettlementRef: "0xtx"})
	assert.ErrorIs(t, err, tickets.ErrEventNotFound)
	assert.Equal(t, 1, flaky.calls, "business failures are not retried")

	stored, err := store.GetEventByID(ctx, "evt")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TicketsSold)
}

// MockAddressCache is a mock implementation of the AddressSetCache interface
type MockAddressCache struct {
	mock.Mock
}

func (m *MockAddressCache) GetTeamAddresses(ctx context.Context, teamID string) ([]string, bool, error) {
	args := m.Called(ctx, teamID)
	addresses, _ := args.Get(0).([]string)
	return addresses, args.Bool(1), args.Error(2)
}

func (m *MockAddressCache) SetTeamAddresses(ctx context.Context, teamID string, addresses []string) error {
	args := m.Called(ctx, teamID, addresses)
	return args.Error(0)
}

func (m *MockAddressCache) InvalidateTeam(ctx context.Context, teamID string) error {
	args := m.Called(ctx, teamID)
	return args.Error(0)
}

func TestOrganizerCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := new(MockAddressCache)
	f.svc.Organizers.Cache = cache

	cache.On("InvalidateTeam", mock.Anything, "team-9").Return(nil).Once()
	require.NoError(t, f.svc.SyncTeam(ctx, models.TeamUpsertedEvent{
		ID:            "team-9",
		WalletAddress: "0xWallet",
		Members:       []string{"0xM1"},
	}))
	event := f.event(t, func(e *models.Event) { e.TeamID = "team-9" })

	// miss: loaded from the store and written back
	cache.On("GetTeamAddresses", mock.Anything, "team-9").Return(nil, false, nil).Once()
	cache.On("SetTeamAddresses", mock.Anything, "team-9", []string{"0xwallet", "0xm1"}).Return(nil).Once()
	set, err := f.svc.Organizers.ResolveAuthorizedAddresses(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xcreator", "0xm1", "0xwallet"}, set.Slice())

	// hit: the cached set wins over the store
	cache.On("GetTeamAddresses", mock.Anything, "team-9").Return([]string{"0xcached"}, true, nil).Once()
	ok, err := f.svc.Organizers.CanManageEvent(ctx, event, models.Identity{Addresses: []string{"0xCACHED"}})
	require.NoError(t, err)
	assert.True(t, ok)

	// a failing cache falls back to the store
	cache.On("GetTeamAddresses", mock.Anything, "team-9").Return(nil, false, errors.New("redis down")).Once()
	cache.On("SetTeamAddresses", mock.Anything, "team-9", mock.Anything).Return(errors.New("redis down")).Once()
	ok, err = f.svc.Organizers.CanManageEvent(ctx, event, models.Identity{Addresses: []string{"0xm1"}})
	require.NoError(t, err)
	assert.True(t, ok)

	cache.AssertExpectations(t)
}

func TestUnknownTeamLeavesCreatorOnly(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, func(e *models.Event) { e.TeamID = "ghost-team" })

	set, err := f.svc.Organizers.ResolveAuthorizedAddresses(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xcreator"}, set.Slice())
}
