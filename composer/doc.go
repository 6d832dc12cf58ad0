// Package composer holds the draft being written in the active conversation
// and turns it into a sent message.
//
// The composer forwards every edit to the typing notifier and the mention
// controller, uploads attachments and voice notes, and sends the draft with
// a client nonce. Messages are appended to the store only after the server
// acknowledged them; a failed send leaves the draft untouched.
//
// Voice notes may carry a transcript produced by an optional Transcriber.
// Transcription is advisory: a missing or failing transcriber yields a voice
// note without a transcript, never an error.
package composer
