package transport

import "errors"

var (
	// ErrMissingURL indicates Options without a URL.
	ErrMissingURL = errors.New("transport URL is required")

	// ErrUnknownPolicy indicates a reconnect policy other than constant or
	// exponential.
	ErrUnknownPolicy = errors.New("unknown reconnect policy")

	// ErrDialInProgress is returned by Connect while another dial is running.
	ErrDialInProgress = errors.New("dial already in progress")
)
