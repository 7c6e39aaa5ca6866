package security

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrSecretTooShort = errors.New("session secret must be at least 16 bytes")
	ErrUnseal         = errors.New("sealed value could not be opened")
)

// Sealer encrypts remote auth tokens before they are written to the
// session store. The key is derived from SESSION_SECRET with HKDF.
type Sealer struct {
	key [32]byte
}

func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 16 {
		return nil, ErrSecretTooShort
	}

	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("room-web session tokens"))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return s, nil
}

// Seal returns nonce||box. An empty plaintext seals to nil.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrUnseal
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(out), nil
}
