package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CheckIn is the durable proof of a ticket's single check-in. TicketID is unique.
type CheckIn struct {
	bun.BaseModel `bun:"table:event_checkins"`

	ID          string    `bun:"id,pk" json:"id"`
	TicketID    string    `bun:"ticket_id,notnull,unique" json:"ticket_id"`
	EventID     string    `bun:"event_id,notnull" json:"event_id"`
	CheckedInAt time.Time `bun:"checked_in_at,notnull" json:"checked_in_at"`
	CheckedInBy string    `bun:"checked_in_by,notnull" json:"checked_in_by"`
	QRTokenID   string    `bun:"qr_token_id,nullzero" json:"qr_token_id,omitempty"`
}
