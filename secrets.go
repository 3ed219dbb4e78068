package gatekeeper

import (
	"context"
	"os"
	"sync"

	"github.com/goliatone/go-errors"
)

// SecretSource resolves the JWT signing secret from wherever it lives, e.g.
// a secrets manager or the process environment.
type SecretSource interface {
	Resolve(ctx context.Context) ([]byte, error)
}

// SecretSourceFunc adapts a function to the SecretSource interface.
type SecretSourceFunc func(ctx context.Context) ([]byte, error)

// Resolve implements SecretSource.
func (f SecretSourceFunc) Resolve(ctx context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil secret source", errors.CategoryInternal)
	}
	return f(ctx)
}

// StaticSecret returns a source backed by a fixed value, mostly for tests.
func StaticSecret(secret string) SecretSource {
	return SecretSourceFunc(func(context.Context) ([]byte, error) {
		return []byte(secret), nil
	})
}

// EnvSecret reads the secret from an environment variable.
func EnvSecret(key string) SecretSource {
	return SecretSourceFunc(func(context.Context) ([]byte, error) {
		val := os.Getenv(key)
		if val == "" {
			return nil, errors.New("signing secret environment variable is empty", errors.CategoryInternal).
				WithMetadata(map[string]any{"env": key})
		}
		return []byte(val), nil
	})
}

// CachedSecretSource fetches the underlying secret exactly once and keeps it
// for the process lifetime. The cached value is read-only after init so
// concurrent reads need no further synchronization. There is no rotation
// support.
type CachedSecretSource struct {
	source SecretSource
	once   sync.Once
	secret []byte
	err    error
}

// NewCachedSecretSource wraps source with a fetch-once guard.
func NewCachedSecretSource(source SecretSource) *CachedSecretSource {
	return &CachedSecretSource{source: source}
}

// Resolve returns the cached secret, fetching it on first use. A fetch
// failure is also cached, a process with no secret stays that way.
func (c *CachedSecretSource) Resolve(ctx context.Context) ([]byte, error) {
	c.once.Do(func() {
		if c.source == nil {
			c.err = errors.New("no secret source configured", errors.CategoryInternal)
			return
		}
		c.secret, c.err = c.source.Resolve(ctx)
	})
	return c.secret, c.err
}
