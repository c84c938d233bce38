package models

import "ms-checkin/internal/utils"

// Identity is the authenticated caller as resolved by the auth middleware.
type Identity struct {
	UserID    string   `json:"user_id"`
	Addresses []string `json:"addresses"`
	Admin     bool     `json:"admin"`
	Service   bool     `json:"service"`
}

// HasAddress reports whether the identity controls the given address.
func (i Identity) HasAddress(address string) bool {
	for _, a := range i.Addresses {
		if utils.SameAddress(a, address) {
			return true
		}
	}
	return false
}

// Actor is the value recorded as the checking party.
func (i Identity) Actor() string {
	if i.UserID != "" {
		return i.UserID
	}
	if len(i.Addresses) > 0 {
		return utils.NormalizeAddress(i.Addresses[0])
	}
	return ""
}
