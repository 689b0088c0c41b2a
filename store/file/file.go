// Package file persists the active TokenSet in a single file, encrypted at
// rest with XChaCha20-Poly1305 under an argon2id-derived key.
package file

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/adeilh/go-vigil/authflow"
)

var (
	ErrMissingPath       = errors.New("file: path is required")
	ErrMissingPassphrase = errors.New("file: passphrase is required")
	ErrCorruptFile       = errors.New("file: stored tokens are corrupt or the passphrase is wrong")
)

// File layout: magic || salt || nonce || ciphertext.
const (
	magic      = "vigil\x01"
	saltLength = 16
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Options configures a Store.
type Options struct {
	// Path is the location of the encrypted token file.
	Path string
	// Passphrase seeds the argon2id key derivation. The derived key, not
	// the passphrase, seals the file.
	Passphrase []byte
	// FileMode applies to the token file; defaults to 0600.
	FileMode os.FileMode
}

// Store implements authflow.TokenStore on an encrypted file.
type Store struct {
	path       string
	passphrase []byte
	mode       os.FileMode
	mu         sync.Mutex
}

// New builds a file-backed token store.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, ErrMissingPath
	}
	if len(opts.Passphrase) == 0 {
		return nil, ErrMissingPassphrase
	}
	mode := opts.FileMode
	if mode == 0 {
		mode = 0o600
	}
	passphrase := append([]byte(nil), opts.Passphrase...)
	return &Store{path: opts.Path, passphrase: passphrase, mode: mode}, nil
}

// Save seals the TokenSet and writes it atomically via a temp file rename.
func (s *Store) Save(_ context.Context, tokens authflow.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("file: encoding tokens: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("file: generating salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return fmt.Errorf("file: building cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("file: generating nonce: %w", err)
	}

	payload := make([]byte, 0, len(magic)+len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	payload = append(payload, magic...)
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = aead.Seal(payload, nonce, plaintext, nil)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".vigil-*")
	if err != nil {
		return fmt.Errorf("file: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: writing tokens: %w", err)
	}
	if err := tmp.Chmod(s.mode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: setting mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: replacing token file: %w", err)
	}
	return nil
}

// Load opens the sealed file and returns the TokenSet. A missing file maps
// to authflow.ErrNoTokens.
func (s *Store) Load(context.Context) (authflow.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return authflow.TokenSet{}, authflow.ErrNoTokens
		}
		return authflow.TokenSet{}, fmt.Errorf("file: reading token file: %w", err)
	}

	if len(payload) < len(magic)+saltLength+chacha20poly1305.NonceSizeX || string(payload[:len(magic)]) != magic {
		return authflow.TokenSet{}, ErrCorruptFile
	}
	payload = payload[len(magic):]
	salt, payload := payload[:saltLength], payload[saltLength:]
	nonce, ciphertext := payload[:chacha20poly1305.NonceSizeX], payload[chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return authflow.TokenSet{}, fmt.Errorf("file: building cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return authflow.TokenSet{}, ErrCorruptFile
	}

	var tokens authflow.TokenSet
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return authflow.TokenSet{}, ErrCorruptFile
	}
	return tokens, nil
}

// Clear removes the token file; a missing file is not an error.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file: removing token file: %w", err)
	}
	return nil
}

func (s *Store) deriveKey(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}
