package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported marks a provider capability gap. It yields an empty result, not a failure.
	ErrUnsupported = errors.New("endpoint not supported by provider")
	// ErrNoCredentials means no credential set could produce data for the window.
	ErrNoCredentials = errors.New("no usable credential sets")
	// ErrInvalidWindow is returned for windows that do not satisfy To > From.
	ErrInvalidWindow = errors.New("invalid date window")
	// ErrZeroDays is returned when a budget period spans no whole days.
	ErrZeroDays = errors.New("budget period spans zero days")
)

// CredentialError reports an invalid, revoked or expired credential set.
type CredentialError struct {
	CredentialID string
	Err          error
}

func (e *CredentialError) Error() string {
	if e.CredentialID == "" {
		return fmt.Sprintf("credential rejected: %v", e.Err)
	}
	return fmt.Sprintf("credential %s rejected: %v", e.CredentialID, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// DataQualityError rejects a single raw record whose field could not be trusted.
type DataQualityError struct {
	Field  string
	Value  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// InvalidModeError is returned by ParseMode.
type InvalidModeError struct {
	Mode string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("unknown mode %q (want weekly, monthly or custom)", e.Mode)
}
