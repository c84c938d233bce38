package db

import (
	"context"

	"ms-checkin/internal/models"
)

// CountTicketsByEvent returns how many ticket records exist for the event.
func (d *DB) CountTicketsByEvent(ctx context.Context, eventID string) (int, error) {
	return d.conn(ctx).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}

// CountCheckInsByEvent returns how many tickets of the event were checked in.
func (d *DB) CountCheckInsByEvent(ctx context.Context, eventID string) (int, error) {
	return d.conn(ctx).NewSelect().
		Model((*models.CheckIn)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}
