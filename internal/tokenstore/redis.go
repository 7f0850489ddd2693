package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps encrypted tokens in an external redis cache with a
// server-side TTL, surviving process restarts.
type RedisStore struct {
	client redisCommander
	cipher *Cipher
	ttl    time.Duration
}

// NewRedisStore creates a redis-backed token store.
func NewRedisStore(client redis.UniversalClient, cipher *Cipher, ttl time.Duration) *RedisStore {
	return newRedisStoreFromCommander(client, cipher, ttl)
}

func newRedisStoreFromCommander(client redisCommander, cipher *Cipher, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		cipher: cipher,
		ttl:    ttl,
	}
}

func tokenKey(sessionID string) string {
	return "token:" + sessionID
}

// Store encrypts and saves a token for the session with the retention
// TTL.
func (s *RedisStore) Store(ctx context.Context, sessionID, token string) error {
	if s.cipher == nil {
		return ErrEncryptionKeyMissing
	}

	encrypted, err := s.cipher.Encrypt(token)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, tokenKey(sessionID), encrypted, s.ttl).Err(); err != nil {
		return fmt.Errorf("store token in redis: %w", err)
	}
	return nil
}

// Get looks up and decrypts the session's token. Corrupted entries are
// deleted and reported as absent.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (string, bool, error) {
	if s.cipher == nil {
		return "", false, ErrEncryptionKeyMissing
	}

	encrypted, err := s.client.Get(ctx, tokenKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read token from redis: %w", err)
	}

	token, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		_ = s.client.Del(ctx, tokenKey(sessionID)).Err()
		return "", false, nil
	}
	return token, true, nil
}

// Delete removes the session's token.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, tokenKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete token from redis: %w", err)
	}
	return nil
}
