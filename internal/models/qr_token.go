package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QRToken is the stored side of a bearer credential. Only the digest of the
// secret is kept; the secret itself is handed out once at issuance.
type QRToken struct {
	bun.BaseModel `bun:"table:ticket_qr_tokens"`

	ID        string     `bun:"id,pk" json:"id"`
	TicketID  string     `bun:"ticket_id,notnull" json:"ticket_id"`
	EventID   string     `bun:"event_id,notnull" json:"event_id"`
	OwnerID   string     `bun:"owner_id,nullzero" json:"owner_id,omitempty"`
	TokenHash string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt *time.Time `bun:"revoked_at" json:"revoked_at,omitempty"`
	IssuedAt  time.Time  `bun:"issued_at,notnull" json:"issued_at"`
}

// Live reports whether the credential can still be presented at now.
func (q *QRToken) Live(now time.Time) bool {
	return q.RevokedAt == nil && q.ExpiresAt.After(now)
}
