package gatekeeper_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t).Sessions()
	userID := uuid.New()

	session, err := repo.Create(ctx, userID, gatekeeper.TokenTypeSession, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, session.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *session.ExpiresAt, time.Second)

	_, err = repo.Create(ctx, userID, "refresh", time.Hour)
	require.NoError(t, err)

	sessions, err := repo.ListByUser(ctx, userID, gatekeeper.TokenTypeSession)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	sessions, err = repo.ListByUser(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t).Sessions()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, userID, gatekeeper.TokenTypeSession, time.Hour)
		require.NoError(t, err)
	}

	result, err := repo.RevokeAll(ctx, userID, gatekeeper.TokenTypeSession)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Found)
	assert.Equal(t, 3, result.Revoked)
	assert.Empty(t, result.Failed)

	sessions, err := repo.ListByUser(ctx, userID, gatekeeper.TokenTypeSession)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRevokeAllOnEmptyUserIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t).Sessions()

	result, err := repo.RevokeAll(ctx, uuid.New(), gatekeeper.TokenTypeSession)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Found)
	assert.Equal(t, 0, result.Revoked)
}

func TestRevokeAllToleratesIndividualFailures(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	// build the store twice on the same db: one pristine, one whose delete
	// fails for a single chosen session
	pristine := gatekeeper.NewSessionsRepository(db)
	userID := uuid.New()

	var poisoned uuid.UUID
	for i := 0; i < 3; i++ {
		session, err := pristine.Create(ctx, userID, gatekeeper.TokenTypeSession, time.Hour)
		require.NoError(t, err)
		if i == 1 {
			poisoned = session.ID
		}
	}

	failing := gatekeeper.NewSessionsRepository(db, gatekeeper.WithSessionDeleter(
		func(ctx context.Context, id uuid.UUID) error {
			if id == poisoned {
				return goerrors.New("simulated delete failure", goerrors.CategoryInternal)
			}
			return pristine.Delete(ctx, id)
		},
	))

	result, err := failing.RevokeAll(ctx, userID, gatekeeper.TokenTypeSession)
	require.NoError(t, err, "individual failures never fail the sweep")
	assert.Equal(t, 3, result.Found)
	assert.Equal(t, 2, result.Revoked)
	assert.Equal(t, []string{poisoned.String()}, result.Failed)

	remaining, err := pristine.ListByUser(ctx, userID, gatekeeper.TokenTypeSession)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "only the poisoned session survived")
}
