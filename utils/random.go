package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSecret returns n random bytes hex encoded.
func GenerateSecret(n int) (string, error) {
	// Make a slice of n random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return hex.EncodeToString(byt), nil
}
