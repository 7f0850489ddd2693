// Package tokenstore keeps per-session GitLab access tokens encrypted
// at rest, behind a capability interface with interchangeable redis,
// file, and in-process backends.
package tokenstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is the token retention period when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the token storage capability the rest of the service
// depends on. Get reports absence with the bool, not an error.
type Store interface {
	Store(ctx context.Context, sessionID, token string) error
	Get(ctx context.Context, sessionID string) (string, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// Options select and configure a backend.
type Options struct {
	// RedisURL selects the redis backend when non-empty.
	RedisURL string
	// Env is the deployment designation ("development", "production").
	Env string
	// DataDir is where the file backend keeps its token file.
	DataDir string
	// TTL is the token retention period.
	TTL time.Duration
	// Cipher encrypts tokens at rest. A nil cipher defers the missing
	// key error to the first store/get so the service can still boot
	// and report the misconfiguration per request.
	Cipher *Cipher
}

// Resolve picks a backend once at process start: redis when an external
// cache is configured, the file store in development, otherwise the
// volatile in-process store with a loud warning under production.
func Resolve(opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if opts.RedisURL != "" {
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			logger.Error("invalid redis url, falling back to file token store", zap.Error(err))
		} else {
			logger.Info("using redis token store")
			return NewRedisStore(redis.NewClient(redisOpts), opts.Cipher, ttl), nil
		}
	}

	if opts.Env == "development" {
		logger.Info("using file token store", zap.String("dir", opts.DataDir))
		return NewFileStore(opts.DataDir, opts.Cipher, ttl)
	}

	if opts.Env == "production" {
		logger.Warn("using in-memory token store in production; tokens will be lost on restart, set REDIS_URL for persistent storage")
	}
	return NewMemoryStore(opts.Cipher, ttl), nil
}
