package tokenstore

import (
	"context"
	"sync"
	"time"
)

type storedToken struct {
	encrypted string
	expiresAt time.Time
}

// MemoryStore keeps encrypted tokens in a mutex-guarded in-process map.
// Contents are lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	cipher *Cipher
	ttl    time.Duration
	tokens map[string]storedToken
	now    func() time.Time
}

// NewMemoryStore creates an in-process token store.
func NewMemoryStore(cipher *Cipher, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cipher: cipher,
		ttl:    ttl,
		tokens: make(map[string]storedToken),
		now:    time.Now,
	}
}

// Store encrypts and saves a token for the session.
func (s *MemoryStore) Store(_ context.Context, sessionID, token string) error {
	if s.cipher == nil {
		return ErrEncryptionKeyMissing
	}

	encrypted, err := s.cipher.Encrypt(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked()
	s.tokens[sessionID] = storedToken{
		encrypted: encrypted,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Get looks up and decrypts the session's token. Expired and
// undecryptable entries are dropped and reported as absent.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (string, bool, error) {
	if s.cipher == nil {
		return "", false, ErrEncryptionKeyMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupExpiredLocked()

	stored, ok := s.tokens[sessionID]
	if !ok {
		return "", false, nil
	}
	if stored.expiresAt.Before(s.now()) {
		delete(s.tokens, sessionID)
		return "", false, nil
	}

	token, err := s.cipher.Decrypt(stored.encrypted)
	if err != nil {
		delete(s.tokens, sessionID)
		return "", false, nil
	}
	return token, true, nil
}

// Delete removes the session's token.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}

func (s *MemoryStore) cleanupExpiredLocked() {
	now := s.now()
	for sessionID, stored := range s.tokens {
		if stored.expiresAt.Before(now) {
			delete(s.tokens, sessionID)
		}
	}
}
