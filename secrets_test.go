package gatekeeper_test

import (
	"context"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedSecretSourceFetchesOnce(t *testing.T) {
	calls := 0
	source := gatekeeper.SecretSourceFunc(func(context.Context) ([]byte, error) {
		calls++
		return []byte("super-secret"), nil
	})

	cached := gatekeeper.NewCachedSecretSource(source)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			secret, err := cached.Resolve(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, []byte("super-secret"), secret)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
}

func TestCachedSecretSourceCachesFailure(t *testing.T) {
	calls := 0
	source := gatekeeper.SecretSourceFunc(func(context.Context) ([]byte, error) {
		calls++
		return nil, goerrors.New("secrets manager unreachable", goerrors.CategoryInternal)
	})

	cached := gatekeeper.NewCachedSecretSource(source)

	_, err := cached.Resolve(context.Background())
	require.Error(t, err)

	_, err = cached.Resolve(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, calls, "a failed fetch is cached, no retries")
}

func TestStaticAndEnvSecret(t *testing.T) {
	secret, err := gatekeeper.StaticSecret("abc").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), secret)

	t.Setenv("GATEKEEPER_TEST_SECRET", "from-env")
	secret, err = gatekeeper.EnvSecret("GATEKEEPER_TEST_SECRET").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env"), secret)

	t.Setenv("GATEKEEPER_TEST_SECRET", "")
	_, err = gatekeeper.EnvSecret("GATEKEEPER_TEST_SECRET").Resolve(context.Background())
	assert.Error(t, err)
}
