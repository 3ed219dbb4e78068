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

func TestActivityInsertIsConflictSafe(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t).Activity()

	record := &gatekeeper.ActivityRecord{
		ID:        uuid.New(),
		Email:     "bob@example.com",
		EventType: string(gatekeeper.ActivityEventLogin),
	}

	require.NoError(t, repo.Insert(ctx, record))
	require.NoError(t, repo.Insert(ctx, record), "duplicate id is a no-op")

	records, total, err := repo.List(ctx, gatekeeper.ActivityCriteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, records, 1)
}

func TestActivityListFilters(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t).Activity()

	seed := []*gatekeeper.ActivityRecord{
		{Email: "bob@example.com", EventType: string(gatekeeper.ActivityEventLogin)},
		{Email: "bob@example.com", EventType: string(gatekeeper.ActivityEventUserDeactivated)},
		{Email: "alice@example.com", EventType: string(gatekeeper.ActivityEventLogin)},
	}
	for _, record := range seed {
		require.NoError(t, repo.Insert(ctx, record))
	}

	_, total, err := repo.List(ctx, gatekeeper.ActivityCriteria{EmailFilter: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	records, total, err := repo.List(ctx, gatekeeper.ActivityCriteria{
		EmailFilter:     "bob",
		EventTypeFilter: string(gatekeeper.ActivityEventLogin),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "bob@example.com", records[0].Email)
}

func TestActivitySinkBuildsRecords(t *testing.T) {
	ctx := context.Background()
	repo := setupManager(t).Activity()

	sink := gatekeeper.NewActivitySink(repo, silentLogger{})

	err := sink.Record(ctx, gatekeeper.ActivityEvent{
		EventType: gatekeeper.ActivityEventLogin,
		Actor:     gatekeeper.ActorRef{ID: "admin-1", Type: "admin"},
		UserID:    "user-1",
		Email:     "Bob@Example.com",
		DeviceID:  "device-9",
	})
	require.NoError(t, err)

	records, _, err := repo.List(ctx, gatekeeper.ActivityCriteria{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "bob@example.com", record.Email)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "device-9", record.DeviceID)
	assert.Equal(t, "admin-1", record.Metadata["actor_id"])
	assert.NotNil(t, record.OccurredAt)
}

func TestMigrateActivityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := setupManager(t).Activity()
	dst := setupManager(t).Activity()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, src.Insert(ctx, &gatekeeper.ActivityRecord{
			ID:         uuid.New(),
			Email:      "bob@example.com",
			EventType:  string(gatekeeper.ActivityEventLogin),
			OccurredAt: &at,
		}))
	}

	copied, err := gatekeeper.MigrateActivity(ctx, src, dst, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, copied)

	// rerun after a "partial failure": no duplicates
	_, err = gatekeeper.MigrateActivity(ctx, src, dst, 3)
	require.NoError(t, err)

	_, total, err := dst.List(ctx, gatekeeper.ActivityCriteria{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
}
