// Package otpcode generates the numeric one-time codes sent by the dev OTP backend.
package otpcode

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
)

// Digits is the length of every generated code.
const Digits = 6

var upper = big.NewInt(10)

// Generate returns a 6-digit numeric code (e.g. "042917") drawn uniformly from crypto/rand.
func Generate() (string, error) {
	s := make([]byte, Digits)
	for i := range s {
		n, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

// Valid reports whether code has the generated shape: exactly Digits ASCII digits.
func Valid(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Equal compares two plaintext codes in constant time. Used when a store keeps codes unhashed (tests, dev lookups).
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
