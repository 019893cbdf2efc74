package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"guardian-shell/internal/domain/auth/model"
)

const sealedPrefix = "sealed:v1:"

type sealedStore struct {
	inner  Store
	aead   cipher.AEAD
	logger model.Logger
}

// NewSealed wraps inner so values are encrypted with XChaCha20-Poly1305.
// The storage key is bound as additional data, so a value copied under
// another key fails to open. Values that fail to open read as absent.
func NewSealed(inner Store, key []byte, logger model.Logger) (Store, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = model.NopLogger{}
	}
	return &sealedStore{inner: inner, aead: aead, logger: logger}, nil
}

func (s *sealedStore) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.open(key, raw)
	if err != nil {
		s.logger.Warn("secure store value for %s could not be opened: %v", key, err)
		return "", false, nil
	}
	return plain, true, nil
}

func (s *sealedStore) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, key, sealedPrefix+base64.StdEncoding.EncodeToString(sealed))
}

func (s *sealedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

func (s *sealedStore) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

func (s *sealedStore) Stats(ctx context.Context) (map[string]any, error) {
	stats, err := s.inner.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats["sealed"] = true
	return stats, nil
}

func (s *sealedStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

func (s *sealedStore) open(key, raw string) (string, error) {
	if !strings.HasPrefix(raw, sealedPrefix) {
		return "", fmt.Errorf("value is not sealed")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, sealedPrefix))
	if err != nil {
		return "", err
	}
	if len(data) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ct := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
