package db

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/models"
)

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.conn(ctx).NewInsert().Model(ticket).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("ticket %s: %w", ticket.ID, ErrDuplicate)
	}
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.conn(ctx).NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &ticket, nil
}

func (d *DB) GetTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.conn(ctx).NewSelect().
		Model(&ticket).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &ticket, nil
}

// LockTicket serializes writers of one ticket's credentials for the rest of
// the transaction. SQLite already serializes writers, so it is a no-op there.
func (d *DB) LockTicket(ctx context.Context, id string) error {
	if !d.isPostgres() {
		return nil
	}
	var ticketID string
	err := d.conn(ctx).NewSelect().
		Model((*models.Ticket)(nil)).
		Column("id").
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx, &ticketID)
	return notFound(err)
}

// MarkTicketCheckedIn sets the check-in fields if the ticket is active and not
// yet checked in. It reports whether this call performed the transition.
func (d *DB) MarkTicketCheckedIn(ctx context.Context, id string, at time.Time, by string) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("checked_in_at = ?", at).
		Set("checked_in_by = ?", by).
		Where("id = ?", id).
		Where("status = ?", models.TicketStatusActive).
		Where("checked_in_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetTicketsByHolder expects a normalized address.
func (d *DB) GetTicketsByHolder(ctx context.Context, address string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.conn(ctx).NewSelect().
		Model(&tickets).
		Where("holder_address = ?", address).
		Order("purchased_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.conn(ctx).NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Order("purchased_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}
