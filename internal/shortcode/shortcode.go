// Package shortcode generates and validates short link codes. It only
// produces candidates; uniqueness is owned by the repository layer.
package shortcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"strings"
)

var (
	ErrInvalidCode  = errors.New("invalid custom code")
	ErrReservedCode = errors.New("custom code is reserved")
)

const (
	// GeneratedLength is fixed: 62^6 ≈ 5.68e10 codes, collisions stay
	// negligible under the repository's bounded retry.
	GeneratedLength = 6

	customMinLength = 4
	customMaxLength = 10

	charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var customCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// reservedCodes are route names a custom code must not shadow. Checked
// case-insensitively.
var reservedCodes = map[string]struct{}{
	"api":     {},
	"admin":   {},
	"app":     {},
	"assets":  {},
	"auth":    {},
	"docs":    {},
	"health":  {},
	"login":   {},
	"logout":  {},
	"oauth":   {},
	"signup":  {},
	"static":  {},
	"support": {},
	"www":     {},
}

// Generate draws a 6-character code uniformly from the base62 alphabet.
func Generate() (string, error) {
	result := make([]byte, GeneratedLength)
	for i := 0; i < GeneratedLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}

// ValidateCustom checks a caller-supplied code: 4-10 characters, alphanumeric
// only, and not a reserved route name. It performs no store access.
func ValidateCustom(code string) error {
	if len(code) < customMinLength || len(code) > customMaxLength {
		return ErrInvalidCode
	}
	if !customCodePattern.MatchString(code) {
		return ErrInvalidCode
	}
	if _, reserved := reservedCodes[strings.ToLower(code)]; reserved {
		return ErrReservedCode
	}
	return nil
}
