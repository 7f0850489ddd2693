package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const tokenFileName = "tokens.json"

type fileEntry struct {
	EncryptedToken string    `json:"encryptedToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// FileStore persists encrypted tokens in a JSON file, suitable for
// local development. The whole file is read and rewritten per
// operation; a mutex serializes access within the process.
type FileStore struct {
	mu     sync.Mutex
	path   string
	cipher *Cipher
	ttl    time.Duration
	now    func() time.Time
}

// NewFileStore creates a file-backed token store under dir (default
// ".data" in the working directory).
func NewFileStore(dir string, cipher *Cipher, ttl time.Duration) (*FileStore, error) {
	if dir == "" {
		dir = ".data"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token data dir: %w", err)
	}

	return &FileStore{
		path:   filepath.Join(dir, tokenFileName),
		cipher: cipher,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Store encrypts and saves a token for the session.
func (s *FileStore) Store(_ context.Context, sessionID, token string) error {
	if s.cipher == nil {
		return ErrEncryptionKeyMissing
	}

	encrypted, err := s.cipher.Encrypt(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()
	s.sweepExpiredLocked(entries)
	entries[sessionID] = fileEntry{
		EncryptedToken: encrypted,
		ExpiresAt:      s.now().Add(s.ttl),
	}
	return s.saveLocked(entries)
}

// Get looks up and decrypts the session's token. Expired and
// undecryptable entries are dropped and reported as absent.
func (s *FileStore) Get(_ context.Context, sessionID string) (string, bool, error) {
	if s.cipher == nil {
		return "", false, ErrEncryptionKeyMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()
	s.sweepExpiredLocked(entries)

	entry, ok := entries[sessionID]
	if !ok {
		return "", false, nil
	}
	if entry.ExpiresAt.Before(s.now()) {
		delete(entries, sessionID)
		_ = s.saveLocked(entries)
		return "", false, nil
	}

	token, err := s.cipher.Decrypt(entry.EncryptedToken)
	if err != nil {
		delete(entries, sessionID)
		_ = s.saveLocked(entries)
		return "", false, nil
	}
	return token, true, nil
}

// Delete removes the session's token.
func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()
	delete(entries, sessionID)
	return s.saveLocked(entries)
}

// loadLocked reads the token file; a missing or corrupted file yields
// an empty map rather than an error.
func (s *FileStore) loadLocked() map[string]fileEntry {
	entries := make(map[string]fileEntry)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			// Corrupted or unreadable files start fresh.
			return entries
		}
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return make(map[string]fileEntry)
	}
	return entries
}

func (s *FileStore) saveLocked(entries map[string]fileEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func (s *FileStore) sweepExpiredLocked(entries map[string]fileEntry) {
	now := s.now()
	for sessionID, entry := range entries {
		if entry.ExpiresAt.Before(now) {
			delete(entries, sessionID)
		}
	}
}
