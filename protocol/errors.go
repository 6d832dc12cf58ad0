package protocol

import "errors"

// ErrMalformed indicates a frame or payload that cannot be decoded. Callers
// log and drop such frames.
var ErrMalformed = errors.New("malformed realtime event")
