package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserKey maps a user ID to the directory name its uploads live under.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
