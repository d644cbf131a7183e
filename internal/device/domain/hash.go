package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashAPIKey hashes a raw device key using the same strategy as provisioning.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
