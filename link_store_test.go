package gatekeeper_test

import (
	"context"
	"testing"
	"time"

	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkRedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := gatekeeper.NewMagicLinkRepository(setupDB(t))

	link, err := store.Create(ctx, &gatekeeper.MagicLink{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.LinkRequested, link.Status)

	require.NoError(t, store.MarkSent(ctx, link.ID, time.Now()))

	redeemed, err := store.Redeem(ctx, link.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.LinkRedeemed, redeemed.Status)
	assert.NotNil(t, redeemed.RedeemedAt)

	_, err = store.Redeem(ctx, link.ID, time.Now())
	require.ErrorIs(t, err, gatekeeper.ErrInvalidOrExpiredLink)
}

func TestLinkRedeemUnknownToken(t *testing.T) {
	ctx := context.Background()
	store := gatekeeper.NewMagicLinkRepository(setupDB(t))

	_, err := store.Redeem(ctx, uuid.New(), time.Now())
	assert.ErrorIs(t, err, gatekeeper.ErrInvalidOrExpiredLink)
}

func TestLinkRedeemExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := gatekeeper.NewMagicLinkRepository(setupDB(t), gatekeeper.WithLinkTTL(15*time.Minute))

	stale := time.Now().Add(-time.Hour)
	link, err := store.Create(ctx, &gatekeeper.MagicLink{
		Email:       "bob@example.com",
		RequestedAt: &stale,
	})
	require.NoError(t, err)

	_, err = store.Redeem(ctx, link.ID, time.Now())
	require.ErrorIs(t, err, gatekeeper.ErrInvalidOrExpiredLink)

	// the failed claim flips the row to its terminal status
	record, err := store.Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, gatekeeper.LinkExpired, record.Status)
}

func TestLinkRedeemInsideWindow(t *testing.T) {
	ctx := context.Background()
	store := gatekeeper.NewMagicLinkRepository(setupDB(t), gatekeeper.WithLinkTTL(15*time.Minute))

	recent := time.Now().Add(-10 * time.Minute)
	link, err := store.Create(ctx, &gatekeeper.MagicLink{
		Email:       "bob@example.com",
		RequestedAt: &recent,
	})
	require.NoError(t, err)

	_, err = store.Redeem(ctx, link.ID, time.Now())
	assert.NoError(t, err)
}
