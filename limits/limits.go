package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageBody is the longest message body in bytes.
	MaxMessageBody = 16 * 1024

	// MaxFrame is the read limit for one realtime frame.
	MaxFrame = 1024 * 1024

	// MaxVoiceNote is the largest voice note recording in bytes.
	MaxVoiceNote = 10 * 1024 * 1024
)

var (
	// ErrEmpty indicates empty input.
	ErrEmpty = errors.New("empty input")

	// ErrTooLarge indicates input over its size limit.
	ErrTooLarge = errors.New("input too large")
)

// ValidateSize checks n against maxSize. The error carries both sizes.
func ValidateSize(n, maxSize int) error {
	if n == 0 {
		return ErrEmpty
	}
	if n > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, n, maxSize)
	}
	return nil
}

// ValidateBody checks a message body against MaxMessageBody.
func ValidateBody(body string) error {
	if len(body) == 0 {
		return ErrEmpty
	}
	if len(body) > MaxMessageBody {
		return fmt.Errorf("%w: body size %d exceeds limit %d", ErrTooLarge, len(body), MaxMessageBody)
	}
	return nil
}

// ValidateVoiceNote checks recorded audio against MaxVoiceNote.
func ValidateVoiceNote(audio []byte) error {
	if len(audio) == 0 {
		return ErrEmpty
	}
	if len(audio) > MaxVoiceNote {
		return fmt.Errorf("%w: voice note size %d exceeds limit %d", ErrTooLarge, len(audio), MaxVoiceNote)
	}
	return nil
}
