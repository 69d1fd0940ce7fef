package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidAccessCode  = errors.New("invalid access code")
	ErrAccessCodeTooShort = errors.New("access code must be at least 8 characters")
)

const (
	minAccessCodeLength = 8
	bcryptCost          = 12
)

// HashAccessCode creates a bcrypt hash suitable for ACCESS_CODE_HASH.
func HashAccessCode(code string) (string, error) {
	if len(code) < minAccessCodeLength {
		return "", ErrAccessCodeTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAccessCode checks code against a bcrypt hash, or against a legacy
// hex-encoded SHA-256 digest.
func VerifyAccessCode(hash, code string) error {
	hash = strings.TrimSpace(hash)
	if strings.HasPrefix(hash, "$2") {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
			return ErrInvalidAccessCode
		}
		return nil
	}

	want, err := hex.DecodeString(hash)
	if err != nil || len(want) != sha256.Size {
		return ErrInvalidAccessCode
	}
	got := sha256.Sum256([]byte(code))
	if subtle.ConstantTimeCompare(want, got[:]) != 1 {
		return ErrInvalidAccessCode
	}
	return nil
}
