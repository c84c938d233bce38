package db

import (
	"context"
	"fmt"

	"ms-checkin/internal/models"
)

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.conn(ctx).NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &event, nil
}

// IncrementTicketsSold reserves one slot on the event. The status and capacity
// checks and the increment are a single conditional update, so two callers
// racing for the last slot cannot both succeed. It reports false when no slot
// was reserved; the caller re-reads the event to find out why.
func (d *DB) IncrementTicketsSold(ctx context.Context, eventID string) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("tickets_sold = tickets_sold + 1").
		Where("id = ?", eventID).
		Where("status = ?", models.EventStatusActive).
		Where("tickets_sold < max_tickets").
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

// UpsertEvent stores a catalog snapshot of an event. tickets_sold is only set
// on first insert and never overwritten afterwards. max_tickets never drops
// below tickets_sold; event is refreshed with the stored counters.
func (d *DB) UpsertEvent(ctx context.Context, event *models.Event) error {
	err := d.WithTx(ctx, func(ctx context.Context) error {
		_, err := d.conn(ctx).NewInsert().
			Model(event).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("location = EXCLUDED.location").
			Set("status = EXCLUDED.status").
			Set("price = EXCLUDED.price").
			Set("max_tickets = EXCLUDED.max_tickets").
			Set("team_id = EXCLUDED.team_id").
			Set("creator_address = EXCLUDED.creator_address").
			Set("starts_at = EXCLUDED.starts_at").
			Set("ends_at = EXCLUDED.ends_at").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return err
		}

		// The row stays locked until commit, so no purchase sees the shrunk capacity.
		_, err = d.conn(ctx).NewUpdate().
			Model((*models.Event)(nil)).
			Set("max_tickets = tickets_sold").
			Where("id = ?", event.ID).
			Where("max_tickets < tickets_sold").
			Exec(ctx)
		if err != nil {
			return err
		}

		return d.conn(ctx).NewSelect().
			Model(event).
			Column("tickets_sold", "max_tickets").
			Where("id = ?", event.ID).
			Scan(ctx)
	})
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", event.ID, err)
	}
	return nil
}
