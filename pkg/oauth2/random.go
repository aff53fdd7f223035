package oauth2

import (
	"crypto/rand"
	"encoding/base64"
)

// stateLength is the number of random bytes behind each state and nonce.
const stateLength = 21

// GenerateRandomString returns n random bytes as unpadded URL-safe base64.
func GenerateRandomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
