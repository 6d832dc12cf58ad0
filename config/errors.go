package config

import "errors"

// Validation errors.
var (
	// ErrMissingEndpoint indicates the API or realtime URL is unset.
	ErrMissingEndpoint = errors.New("missing endpoint")

	// ErrInvalidDuration indicates a non-positive interval or timeout.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidLimit indicates a non-positive count.
	ErrInvalidLimit = errors.New("invalid limit")
)

// Identity errors.
var (
	// ErrInvalidToken indicates the access token is not a JWT.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrMissingSubject indicates the token has no numeric sub claim.
	ErrMissingSubject = errors.New("access token has no numeric subject")
)
