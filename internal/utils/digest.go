package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestSecret returns the hex encoded SHA-256 of a bearer secret.
// Only this value is ever persisted.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
