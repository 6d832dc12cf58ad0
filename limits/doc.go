// Package limits centralizes the size limits the client enforces before
// data reaches the server or after it arrives from the network.
//
// # Size Hierarchy
//
//   - MaxMessageBody (16 KiB): the longest message body the composer sends.
//   - MaxFrame (1 MiB): the largest realtime frame the transport reads.
//     Larger frames close the connection, which then reconnects.
//   - MaxVoiceNote (10 MiB): the largest recorded voice note accepted for
//     upload.
//
// # Validation
//
//	if err := limits.ValidateBody(text); err != nil {
//	    // ErrEmpty or ErrTooLarge
//	}
//
// ValidateSize checks any length against a custom limit.
package limits
