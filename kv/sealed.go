package kv

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedValueCorrupt is returned when a stored ciphertext cannot be opened.
var ErrSealedValueCorrupt = errors.New("sealed value corrupt")

const sealedKeyPrefix = "secure:"

// SealedStore turns any Store into a SecureStore by sealing values with
// XChaCha20-Poly1305. The logical key is bound as additional data, so a
// ciphertext copied to another key fails to open.
type SealedStore struct {
	inner Store
	aead  cipherAEAD
}

type cipherAEAD interface {
	NonceSize() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewSealedStore wraps inner with a 32-byte key.
func NewSealedStore(inner Store, key []byte) (*SealedStore, error) {
	if inner == nil {
		return nil, errors.New("nil inner store")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealed store key must be %d bytes", chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &SealedStore{inner: inner, aead: aead}, nil
}

// NewSealingKey returns a random key suitable for NewSealedStore.
func NewSealingKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, sealedKeyPrefix+key)
	if err != nil || !ok {
		return "", false, err
	}
	blob, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		return "", false, ErrSealedValueCorrupt
	}
	ns := s.aead.NonceSize()
	if len(blob) < ns {
		return "", false, ErrSealedValueCorrupt
	}
	plain, err := s.aead.Open(nil, blob[:ns], blob[ns:], []byte(key))
	if err != nil {
		return "", false, ErrSealedValueCorrupt
	}
	return string(plain), true, nil
}

func (s *SealedStore) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+chacha20poly1305.Overhead)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	blob := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, sealedKeyPrefix+key, base64.RawStdEncoding.EncodeToString(blob))
}

func (s *SealedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, sealedKeyPrefix+key)
}
