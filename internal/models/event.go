package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	EventStatusDraft     = "draft"
	EventStatusActive    = "active"
	EventStatusEnded     = "ended"
	EventStatusCancelled = "cancelled"
)

// Event is the local snapshot of a catalog event. TicketsSold is owned by the
// purchase transaction and is never overwritten by catalog sync.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID             string    `bun:"id,pk" json:"id"`
	Name           string    `bun:"name,notnull" json:"name"`
	Location       string    `bun:"location" json:"location,omitempty"`
	Status         string    `bun:"status,notnull" json:"status"`
	Price          float64   `bun:"price,notnull" json:"price"`
	MaxTickets     int       `bun:"max_tickets,notnull" json:"max_tickets"`
	TicketsSold    int       `bun:"tickets_sold,notnull" json:"tickets_sold"`
	TeamID         string    `bun:"team_id,nullzero" json:"team_id,omitempty"`
	CreatorAddress string    `bun:"creator_address" json:"creator_address"`
	StartsAt       time.Time `bun:"starts_at,nullzero" json:"starts_at,omitempty"`
	EndsAt         time.Time `bun:"ends_at,nullzero" json:"ends_at,omitempty"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func IsValidEventStatus(status string) bool {
	switch status {
	case EventStatusDraft, EventStatusActive, EventStatusEnded, EventStatusCancelled:
		return true
	}
	return false
}
