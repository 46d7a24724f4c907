// Package cipher seals memory content at rest. A Box holds one static
// 32-byte symmetric key; rotation and multi-key schemes are out of scope.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"keepsake/internal/memory"
)

const envKey = "KEEPSAKE_MEMORY_KEY"

var ErrKeySize = errors.New("cipher: key must decode to 32 bytes")

// Box is a symmetric XChaCha20-Poly1305 sealer. The random nonce is
// prepended to the sealed blob, so Seal output is self-contained.
type Box struct {
	aead stdcipher.AEAD
}

func New(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return &Box{aead: aead}, nil
}

func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: sealed blob too short", memory.ErrDecrypt)
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	plaintext, err := b.aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrDecrypt, err)
	}
	return plaintext, nil
}

// GenerateKey returns a fresh random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cipher: generate key: %w", err)
	}
	return key, nil
}

// LoadOrCreateKey resolves the store key: KEEPSAKE_MEMORY_KEY env first,
// then the base64 key file at path, else a new key generated and written
// there (0600). The same key must be supplied on every subsequent open or
// stored content becomes permanently unreadable.
func LoadOrCreateKey(path string) ([]byte, error) {
	if raw := strings.TrimSpace(os.Getenv(envKey)); raw != "" {
		return decodeKey(raw)
	}
	data, err := os.ReadFile(path)
	if err == nil {
		return decodeKey(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cipher: read key file: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cipher: create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("cipher: write key file: %w", err)
	}
	return key, nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("cipher: invalid key encoding: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	return key, nil
}
