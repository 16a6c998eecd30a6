// Package credential implements the encrypted-at-rest secret store (C2):
// a per-user master key file and an encrypted JSON blob of platform
// credentials, plus per-domain session snapshot files written with the
// same construction.
package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/use-agent/webgrabber/models"
)

const (
	keyFileName  = "master.key"
	blobFileName = "credentials.enc"
	dirMode      = 0o700
	fileMode     = 0o600
	keySize      = chacha20poly1305.KeySize
)

// Store is a file-backed, encrypted credential store. One Store instance
// owns one directory; its methods hold the mutex for the lifetime of each
// read-modify-write sequence to avoid concurrent writers corrupting the
// blob.
type Store struct {
	mu  sync.Mutex
	dir string
	key []byte
}

// Open loads or creates the master key under dir and returns a Store
// ready for Get/Put. dir is created with 0700 permissions if missing.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("credential: create store dir: %w", err)
	}

	key, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}

	return &Store{dir: dir, key: key}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	existing, err := os.ReadFile(path)
	if err == nil {
		if len(existing) != keySize {
			return nil, fmt.Errorf("credential: key file %s has wrong length %d", path, len(existing))
		}
		return existing, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("credential: read key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("credential: generate key: %w", err)
	}
	if err := os.WriteFile(path, key, fileMode); err != nil {
		return nil, fmt.Errorf("credential: write key file: %w", err)
	}
	return key, nil
}

// Put stores or replaces the credential record for platformID.
func (s *Store) Put(platformID string, rec models.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	all[platformID] = rec
	return s.saveAll(all)
}

// Get returns the credential record for platformID, or ok=false if none
// has been stored.
func (s *Store) Get(platformID string) (models.CredentialRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return models.CredentialRecord{}, false, err
	}
	rec, ok := all[platformID]
	return rec, ok, nil
}

// Delete removes the credential record for platformID, if present.
func (s *Store) Delete(platformID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	delete(all, platformID)
	return s.saveAll(all)
}

func (s *Store) blobPath() string {
	return filepath.Join(s.dir, blobFileName)
}

func (s *Store) loadAll() (map[string]models.CredentialRecord, error) {
	ciphertext, err := os.ReadFile(s.blobPath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]models.CredentialRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credential: read blob: %w", err)
	}

	plaintext, err := decrypt(s.key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("credential: decrypt blob: %w", err)
	}

	var all map[string]models.CredentialRecord
	if err := json.Unmarshal(plaintext, &all); err != nil {
		return nil, fmt.Errorf("credential: decode blob: %w", err)
	}
	return all, nil
}

func (s *Store) saveAll(all map[string]models.CredentialRecord) error {
	plaintext, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("credential: encode blob: %w", err)
	}

	ciphertext, err := encrypt(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("credential: encrypt blob: %w", err)
	}

	if err := os.WriteFile(s.blobPath(), ciphertext, fileMode); err != nil {
		return fmt.Errorf("credential: write blob: %w", err)
	}
	return nil
}

// encrypt seals plaintext with chacha20poly1305, prefixing the random
// nonce to the returned ciphertext.
func encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt reverses encrypt: the leading aead.NonceSize() bytes of data are
// the nonce.
func decrypt(key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	if len(data) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}

// SessionFilePath returns the path session snapshots for host are written
// to and read from: session_<host>.dat under the store directory.
func (s *Store) SessionFilePath(host string) string {
	return filepath.Join(s.dir, "session_"+host+".dat")
}

// SaveSession encrypts and writes a session snapshot for host.
func (s *Store) SaveSession(host string, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("credential: encode session: %w", err)
	}
	ciphertext, err := encrypt(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("credential: encrypt session: %w", err)
	}
	return os.WriteFile(s.SessionFilePath(host), ciphertext, fileMode)
}

// LoadSession reads and decrypts the session snapshot for host, if one
// exists.
func (s *Store) LoadSession(host string) (models.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, err := os.ReadFile(s.SessionFilePath(host))
	if errors.Is(err, os.ErrNotExist) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("credential: read session: %w", err)
	}

	plaintext, err := decrypt(s.key, ciphertext)
	if err != nil {
		return models.Session{}, false, fmt.Errorf("credential: decrypt session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(plaintext, &sess); err != nil {
		return models.Session{}, false, fmt.Errorf("credential: decode session: %w", err)
	}
	return sess, true, nil
}
