// Package mention implements @-mention autocomplete for the composer.
//
// [ActiveToken] finds the mention being typed at the caret. A [Controller]
// debounces lookups for that token, merges matching conversation members
// with matching library files, and drives a small option menu with
// keyboard navigation. Committing an option rewrites the composer text and,
// for files, adds the file as a pending attachment in one step through the
// [Target] interface.
//
// All offsets are rune offsets into the composer text.
package mention
