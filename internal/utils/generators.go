package utils

import (
	"github.com/google/uuid"
)

const (
	SecretPrefix     = "be_qr_"
	TicketCodePrefix = "tk_"
)

// GenerateID returns a new random record identifier.
func GenerateID() string {
	return uuid.New().String()
}

// GenerateSecret creates a bearer secret for a QR credential.
// The random part is a UUIDv4 (122 bits of entropy).
func GenerateSecret() string {
	return SecretPrefix + uuid.New().String()
}

// GenerateTicketCode creates the stable per-ticket code printed on a ticket.
func GenerateTicketCode() string {
	return TicketCodePrefix + uuid.New().String()
}
