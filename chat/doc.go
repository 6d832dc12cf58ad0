// Package chat defines the data model shared by every commlink component:
// conversations and their members, messages with attachments, references,
// reactions and suggestions, and the filter used by message search.
//
// Values in this package are plain data. Reconciliation rules live in the
// messages package; this package only knows how to copy, compare and match.
package chat
