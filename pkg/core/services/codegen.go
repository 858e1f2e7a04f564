package services

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeLength is the size of auto-generated codes. Collision resistance
// comes from the store's unique constraint, not from the code length.
const codeLength = 6

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// validCode reports whether a user-chosen code fits the allowed alphabet.
func validCode(code string) bool {
	return codePattern.MatchString(code)
}

func generateCode(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}
