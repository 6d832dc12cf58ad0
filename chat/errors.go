package chat

import "errors"

// Search filter errors.
var (
	// ErrInvalidTriState indicates a has_* flag outside any|yes|no.
	ErrInvalidTriState = errors.New("tri-state flag must be any, yes or no")

	// ErrInvalidDateRange indicates a search range that ends before it starts.
	ErrInvalidDateRange = errors.New("search date range ends before it starts")
)
