package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

// Claims is the subset of access token claims the service reads. Keycloak
// puts realm roles under realm_access; plain issuers use roles.
type Claims struct {
	WalletAddress   string   `json:"wallet_address,omitempty"`
	WalletAddresses []string `json:"wallet_addresses,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	RealmAccess     struct {
		Roles []string `json:"roles,omitempty"`
	} `json:"realm_access,omitempty"`
	jwt.RegisteredClaims
}

type RoleConfig struct {
	Admin   string
	Service string
}

func (c *Claims) hasRole(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	for _, r := range c.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity maps the claims onto the caller identity used by the service.
func (c *Claims) Identity(roles RoleConfig) models.Identity {
	addresses := append([]string{c.WalletAddress}, c.WalletAddresses...)
	return models.Identity{
		UserID:    c.Subject,
		Addresses: utils.NormalizeAddresses(addresses),
		Admin:     c.hasRole(roles.Admin),
		Service:   c.hasRole(roles.Service),
	}
}
