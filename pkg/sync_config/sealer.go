package sync_config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrUnsealFailed = errors.New("could not unseal credentials")

// Sealer encrypts credentials at rest.
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// NewSealer returns a secretbox sealer for a base64 encoded key. Without a key, credentials
// are stored in plain form.
func NewSealer(encodedKey string) (Sealer, error) {
	if encodedKey == "" {
		log.Warn("No secrets.key configured, provider credentials will be stored unencrypted")
		return plainSealer{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("secrets.key is not valid base64: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("secrets.key must decode to %d bytes, got %d", keySize, len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &boxSealer{key: key}, nil
}

type boxSealer struct {
	key [keySize]byte
}

func (s *boxSealer) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("could not generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *boxSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrUnsealFailed
	}
	return plain, nil
}

type plainSealer struct{}

func (plainSealer) Seal(plain []byte) ([]byte, error) {
	return plain, nil
}

func (plainSealer) Open(sealed []byte) ([]byte, error) {
	return sealed, nil
}
