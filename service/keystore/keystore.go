// Package keystore backs the webview's keychain_* commands with an
// encrypted key-value table. Values are sealed with AES-GCM under a key
// derived from the API key; a changed API key makes old values
// undecryptable, which reads as "not found" rather than an error.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/scrypt"
)

// Limits mirror what platform keychains tolerate; oversized entries are
// rejected up front instead of failing on the device.
const (
	MinKeyLength   = 1
	MaxKeyLength   = 256
	MaxValueLength = 4096
)

var ErrNotFound = errors.New("keystore: key not found")

type Store struct {
	db     *sql.DB
	sealer cipher.AEAD
	logger *slog.Logger
}

func New(db *sql.DB, masterPassword string, logger *slog.Logger) (*Store, error) {
	key, err := deriveKey(masterPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	sealer, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	store := &Store{db: db, sealer: sealer, logger: logger}
	if err := store.createTable(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *Store) createTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS keystore (
			key TEXT PRIMARY KEY,
			value_encrypted BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func deriveKey(password string) ([]byte, error) {
	salt := []byte("beacon-keystore-salt-v1")
	return scrypt.Key([]byte(password), salt, 32768, 8, 1, 32)
}

// ValidateKey enforces the keychain key length bounds.
func ValidateKey(key string) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("key length must be at least %d characters, got %d", MinKeyLength, len(key))
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key length must be at most %d characters, got %d", MaxKeyLength, len(key))
	}
	return nil
}

// ValidateValue enforces the keychain value size bound.
func ValidateValue(value string) error {
	if len(value) > MaxValueLength {
		return fmt.Errorf("value length must be at most %d characters, got %d", MaxValueLength, len(value))
	}
	return nil
}

func (s *Store) Put(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}

	sealed, err := s.encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO keystore (key, value_encrypted, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value_encrypted = excluded.value_encrypted,
			updated_at = CURRENT_TIMESTAMP
	`, key, sealed)
	return err
}

func (s *Store) Get(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	var sealed []byte
	err := s.db.QueryRow(`SELECT value_encrypted FROM keystore WHERE key = ?`, key).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	plain, err := s.decrypt(sealed)
	if err != nil {
		s.logger.Warn("Stored value undecryptable (API key changed?), treating as missing", "key", key)
		return "", ErrNotFound
	}

	return string(plain), nil
}

func (s *Store) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM keystore WHERE key = ?`, key)
	return err
}

func (s *Store) Exists(key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM keystore WHERE key = ?`, key).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.sealer.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.sealer.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < s.sealer.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:s.sealer.NonceSize()], ciphertext[s.sealer.NonceSize():]
	return s.sealer.Open(nil, nonce, ciphertext, nil)
}
