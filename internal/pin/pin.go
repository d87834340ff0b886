// Package pin hashes and verifies the short numeric secrets that gate value transfers.
package pin

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 work factor used for stored records.
	DefaultIterations = 100_000
	keyLength         = 64
	saltLength        = 16
	minDigits         = 4
	maxDigits         = 6
)

// ErrInvalidFormat is returned when a PIN is not 4 to 6 ASCII digits.
var ErrInvalidFormat = errors.New("pin must be 4 to 6 digits")

// Guard derives and checks PIN hash records.
type Guard struct {
	iterations int
}

// Default is the guard used by production code paths.
var Default = NewGuard(DefaultIterations)

// NewGuard builds a guard with the provided iteration count.
func NewGuard(iterations int) *Guard {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Guard{iterations: iterations}
}

// ValidFormat reports whether pin consists of 4 to 6 ASCII digits.
func ValidFormat(pin string) bool {
	if len(pin) < minDigits || len(pin) > maxDigits {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// Hash returns a "salt:key" record for pin, both parts hex encoded.
func (g *Guard) Hash(pin string) (string, error) {
	if !ValidFormat(pin) {
		return "", ErrInvalidFormat
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := g.derive(pin, salt)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify re-derives the key with the record's salt and compares in constant time.
// It returns false for malformed pins or records.
func (g *Guard) Verify(pin, record string) bool {
	if !ValidFormat(pin) {
		return false
	}
	saltHex, keyHex, ok := strings.Cut(record, ":")
	if !ok || saltHex == "" || keyHex == "" {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) != keyLength {
		return false
	}
	got := g.derive(pin, salt)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (g *Guard) derive(pin string, salt []byte) []byte {
	return pbkdf2.Key([]byte(pin), salt, g.iterations, keyLength, sha512.New)
}

// Hash hashes pin with the default guard.
func Hash(pin string) (string, error) { return Default.Hash(pin) }

// Verify checks pin against record with the default guard.
func Verify(pin, record string) bool { return Default.Verify(pin, record) }
