// Package secure is a key-value store with stronger at-rest protection
// than the general kv store: values are sealed with XChaCha20-Poly1305
// under a key derived from a device keyfile via Argon2id. It holds the
// PIN and the biometric marker.
package secure

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"pocketledger/internal/kv"
)

const (
	secretLen = 32
	saltLen   = 32

	// Argon2id parameters for stretching the device secret.
	kdfMemoryKiB  = 64 * 1024
	kdfIterations = 3
	kdfThreads    = 2

	saltMetaKey = "_kdf_salt"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")

	errShortCiphertext = errors.New("ciphertext too short")
)

// Store seals values at rest. Sealed layout is nonce || ciphertext, with
// the entry key bound as associated data so values cannot be swapped
// between keys.
type Store struct {
	kv  *kv.Store
	key []byte
}

// Open opens the protected store. The keyfile at keyPath is created with
// a fresh random device secret on first use; the KDF salt lives inside
// the store itself.
func Open(dbPath, keyPath string) (*Store, error) {
	store, err := kv.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open secure store: %w", err)
	}

	secret, err := loadOrCreateSecret(keyPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("device secret: %w", err)
	}

	salt, err := loadOrCreateSalt(context.Background(), store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("kdf salt: %w", err)
	}

	key := argon2.IDKey(secret, salt, kdfIterations, kdfMemoryKiB, kdfThreads, chacha20poly1305.KeySize)

	return &Store{kv: store, key: key}, nil
}

func (s *Store) Close() error {
	return s.kv.Close()
}

// Set seals value and stores it under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, sealed)
}

// Get opens the value stored under key, or returns (nil, nil) if absent.
// A value sealed under a different device key fails with
// ErrAuthenticationFailed.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, nil
	}
	return s.open(key, sealed)
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

// Has reports existence without unsealing the value.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	return s.kv.Has(ctx, key)
}

func (s *Store) seal(name string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("construct aead: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, []byte(name)), nil
}

func (s *Store) open(name string, sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errShortCiphertext
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("construct aead: %w", err)
	}

	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

func loadOrCreateSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != secretLen {
			return nil, fmt.Errorf("keyfile %s has unexpected length %d", path, len(secret))
		}
		return secret, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}

	secret = make([]byte, secretLen)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("generate device secret: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create keyfile directory: %w", err)
		}
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write keyfile: %w", err)
	}
	return secret, nil
}

func loadOrCreateSalt(ctx context.Context, store *kv.Store) ([]byte, error) {
	salt, err := store.Get(ctx, saltMetaKey)
	if err != nil {
		return nil, err
	}
	if salt != nil {
		if len(salt) != saltLen {
			return nil, fmt.Errorf("stored salt has unexpected length %d", len(salt))
		}
		return salt, nil
	}

	salt = make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := store.Set(ctx, saltMetaKey, salt); err != nil {
		return nil, err
	}
	return salt, nil
}
