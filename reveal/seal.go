package reveal

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"runtime"

	"golang.org/x/crypto/nacl/secretbox"
)

type sealed struct {
	nonce [24]byte
	box   []byte
}

func newKey() ([32]byte, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func seal(plaintext []byte, key *[32]byte) (sealed, error) {
	var s sealed
	if _, err := rand.Read(s.nonce[:]); err != nil {
		return s, fmt.Errorf("generate nonce: %w", err)
	}
	s.box = secretbox.Seal(nil, plaintext, &s.nonce, key)
	return s, nil
}

func (s sealed) open(key *[32]byte) ([]byte, error) {
	out, ok := secretbox.Open(nil, s.box, &s.nonce, key)
	if !ok {
		return nil, ErrTampered
	}
	return out, nil
}

// wipe overwrites b with zeros.
func wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
	runtime.KeepAlive(b)
}
