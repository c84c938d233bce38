package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Team is an organizing team. Its wallet and members may check in tickets
// for the team's events.
type Team struct {
	bun.BaseModel `bun:"table:teams"`

	ID            string    `bun:"id,pk" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	WalletAddress string    `bun:"wallet_address" json:"wallet_address"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type TeamMember struct {
	bun.BaseModel `bun:"table:team_members"`

	TeamID  string `bun:"team_id,pk" json:"team_id"`
	Address string `bun:"address,pk" json:"address"`
}
