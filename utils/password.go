package utils

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const guestPasswordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// HashPassword returns the bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares the bcrypt hashed password with its possible
// plaintext equivalent.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateGuestPassword creates a random password of length n drawn from
// lowercase letters and digits.
func GenerateGuestPassword(n int) string {
	if n <= 0 {
		n = 7
	}
	out := make([]byte, n)
	alphabetLen := big.NewInt(int64(len(guestPasswordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(err)
		}
		out[i] = guestPasswordAlphabet[idx.Int64()]
	}
	return string(out)
}
