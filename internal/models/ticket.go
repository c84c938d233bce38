package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	TicketStatusActive      = "active"
	TicketStatusListed      = "listed"
	TicketStatusTransferred = "transferred"
	TicketStatusRefunded    = "refunded"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            string     `bun:"id,pk" json:"id"`
	Code          string     `bun:"code,notnull,unique" json:"code"`
	EventID       string     `bun:"event_id,notnull" json:"event_id"`
	HolderAddress string     `bun:"holder_address,notnull" json:"holder_address"`
	AgentID       string     `bun:"agent_id,nullzero" json:"agent_id,omitempty"`
	PricePaid     float64    `bun:"price_paid,notnull" json:"price_paid"`
	SettlementRef string     `bun:"settlement_ref,notnull" json:"settlement_ref"`
	Status        string     `bun:"status,notnull" json:"status"`
	PurchasedAt   time.Time  `bun:"purchased_at,notnull" json:"purchased_at"`
	CheckedInAt   *time.Time `bun:"checked_in_at" json:"checked_in_at,omitempty"`
	CheckedInBy   string     `bun:"checked_in_by,nullzero" json:"checked_in_by,omitempty"`
}

func (t *Ticket) IsCheckedIn() bool {
	return t.CheckedInAt != nil
}
