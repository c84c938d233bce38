package db

import (
	"context"
	"fmt"

	"ms-checkin/internal/models"
)

// CreateCheckIn inserts the check-in record. The unique index on ticket_id
// makes this the exactly-once gate: a second record for the same ticket
// fails with ErrDuplicate.
func (d *DB) CreateCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	_, err := d.conn(ctx).NewInsert().Model(checkIn).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("check-in for ticket %s: %w", checkIn.TicketID, ErrDuplicate)
	}
	return err
}

func (d *DB) GetCheckInByTicket(ctx context.Context, ticketID string) (*models.CheckIn, error) {
	var checkIn models.CheckIn
	err := d.conn(ctx).NewSelect().
		Model(&checkIn).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &checkIn, nil
}

func (d *DB) GetCheckInsByEvent(ctx context.Context, eventID string) ([]models.CheckIn, error) {
	var checkIns []models.CheckIn
	err := d.conn(ctx).NewSelect().
		Model(&checkIns).
		Where("event_id = ?", eventID).
		Order("checked_in_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return checkIns, nil
}
