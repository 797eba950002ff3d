// Package common defines shared constants and sentinel errors used across
// gophaudio components. Callers should use errors.Is to match these values.
package common

import "errors"

var (

	// repository specific errors
	ErrNotFound = errors.New("not found")

	// credential errors
	ErrDuplicateIdentity  = errors.New("identity already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// token errors
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// conversion errors
	ErrConversionFailed   = errors.New("conversion failed")
	ErrNoAudioTrack       = errors.New("video has no audio track")
	ErrStorageWriteFailed = errors.New("storage write failed")

	// service specific errors
	ErrValidation = errors.New("validation error")
	ErrorInternal = errors.New("internal error")
)

// ConversionFailedError carries the reason a converter gave up.
// It matches ErrConversionFailed via errors.Is.
type ConversionFailedError struct {
	Reason string
}

func (e *ConversionFailedError) Error() string {
	return "conversion failed: " + e.Reason
}

func (e *ConversionFailedError) Unwrap() error {
	return ErrConversionFailed
}
