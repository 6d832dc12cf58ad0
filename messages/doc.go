// Package messages holds the client-side view of conversations and the
// messages of the active conversation.
//
// # Store
//
// [Store] keeps an ordered log of the active conversation's messages. Load
// replaces the log with a server snapshot; realtime events are merged with
// fixed, idempotent rules:
//
//   - message.created appends only unseen ids and never re-sorts
//   - message.updated merges into an existing entry and never inserts
//   - message.deleted tombstones the entry in place
//   - reaction.added and reaction.removed toggle one (user, emoji) pair and
//     are no-ops for messages that are not loaded
//
// Every fetch captures a generation number when it starts. A result whose
// generation is no longer current, because the active conversation changed
// or a newer fetch started, is discarded with [ErrSuperseded].
//
// # Directory
//
// [Directory] caches the conversation list and the members of each
// conversation.
//
// # Search
//
// [Search] runs a server-side query and re-checks every hit locally. Results
// are snapshots and are never reconciled with realtime events; opening one
// goes through Store.Open.
package messages
