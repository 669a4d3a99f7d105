package service

import (
	"errors"
	"fmt"
)

// Service-level errors. Handlers map these onto the HTTP surface; anything
// unrecognized is a storage failure and becomes a 500.
var (
	ErrInvalidURL          = errors.New("invalid destination URL")
	ErrNotFound            = errors.New("link not found")
	ErrExpired             = errors.New("link expired")
	ErrCodeConflict        = errors.New("short code already in use")
	ErrGenerationExhausted = errors.New("short code generation attempts exhausted")
	ErrNoBillingAccount    = errors.New("organization has no billing account")
)

// QuotaExceededError reports the billing account's committed usage against
// its tier limit. Surfaced as 403, never 500.
type QuotaExceededError struct {
	Current int64
	Limit   int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly link quota exceeded: %d/%d", e.Current, e.Limit)
}

// MigrationCapacityError reports that a migration would push the target
// billing account over its monthly limit.
type MigrationCapacityError struct {
	Requested int64
	Available int64
}

func (e *MigrationCapacityError) Error() string {
	return fmt.Sprintf("migration of %d links exceeds available capacity %d", e.Requested, e.Available)
}
