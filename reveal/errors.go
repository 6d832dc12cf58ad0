package reveal

import "errors"

var (
	// ErrClosed indicates the cache has been closed.
	ErrClosed = errors.New("reveal cache closed")

	// ErrInvalidMessage indicates a zero message id.
	ErrInvalidMessage = errors.New("invalid message id")

	// ErrTampered indicates sealed plaintext failed authentication.
	ErrTampered = errors.New("sealed plaintext failed authentication")
)
