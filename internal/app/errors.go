package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users verbatim and must not
	// enable account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden is returned when a user touches a listing they do not own.
	ErrForbidden = errors.New("forbidden")
)
