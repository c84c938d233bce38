package tickets

import "time"

type ScanStatus string

const (
	StatusValid            ScanStatus = "valid"
	StatusNotFound         ScanStatus = "not_found"
	StatusUnauthorized     ScanStatus = "unauthorized"
	StatusInactive         ScanStatus = "inactive"
	StatusAlreadyCheckedIn ScanStatus = "already_checked_in"
	StatusInvalid          ScanStatus = "invalid"
	StatusExpired          ScanStatus = "expired"
)

// ScanResult is the outcome of a check-in attempt. Business failures are
// reported here, never as errors, so callers can render Message directly.
type ScanResult struct {
	OK            bool       `json:"ok"`
	Status        ScanStatus `json:"status"`
	Message       string     `json:"message"`
	TicketID      string     `json:"ticket_id,omitempty"`
	EventID       string     `json:"event_id,omitempty"`
	HolderAddress string     `json:"holder_address,omitempty"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
}

func rejected(status ScanStatus, message string) *ScanResult {
	return &ScanResult{OK: false, Status: status, Message: message}
}
