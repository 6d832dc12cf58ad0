// Package typing tracks who is typing in each conversation and announces the
// local user's typing.
//
// The Tracker consumes inbound typing.started and typing.stopped events.
// Entries expire after a staleness window even if the stop event is lost; a
// periodic sweep purges them and queries never report expired entries.
//
// The Notifier turns local keystrokes into outbound events. A start is sent at
// most once per interval per conversation, and a stop follows automatically
// after the user has been idle.
package typing
