package models

import "time"

// Messages published to Kafka after a committed change.

type TicketPurchasedEvent struct {
	TicketID      string    `json:"ticket_id"`
	EventID       string    `json:"event_id"`
	HolderAddress string    `json:"holder_address"`
	PricePaid     float64   `json:"price_paid"`
	SettlementRef string    `json:"settlement_ref"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

// QRIssuedEvent never carries the secret.
type QRIssuedEvent struct {
	TokenID   string    `json:"token_id"`
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

type TicketCheckedInEvent struct {
	TicketID      string    `json:"ticket_id"`
	EventID       string    `json:"event_id"`
	HolderAddress string    `json:"holder_address"`
	CheckedInAt   time.Time `json:"checked_in_at"`
	CheckedInBy   string    `json:"checked_in_by"`
	Method        string    `json:"method"`
}

// Messages consumed from Kafka.

type PaymentConfirmedEvent struct {
	EventID       string  `json:"event_id"`
	HolderAddress string  `json:"holder_address"`
	PricePaid     float64 `json:"price_paid"`
	SettlementRef string  `json:"settlement_ref"`
	AgentID       string  `json:"agent_id,omitempty"`
}

type EventUpsertedEvent struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Location       string  `json:"location"`
	Status         string  `json:"status"`
	Price          float64 `json:"price"`
	MaxTickets     int     `json:"max_tickets"`
	TeamID         string  `json:"team_id"`
	CreatorAddress string  `json:"creator_address"`
	StartTime      int64   `json:"start_time"`
	EndTime        int64   `json:"end_time"`
}

type TeamUpsertedEvent struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	WalletAddress string   `json:"wallet_address"`
	Members       []string `json:"members"`
}
