// Package reveal keeps the plaintext of sensitive messages for a short,
// fixed window after the user asks to see it.
//
// Each revealed message id has exactly one expiry timer. Revealing the same
// id again stops the old timer and starts a fresh window. Plaintext is held
// sealed with a per-cache random key (NaCl secretbox) and the sealed bytes
// are wiped when an entry expires, is hidden, or the cache is closed.
package reveal
