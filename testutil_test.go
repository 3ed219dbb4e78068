package gatekeeper_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	gatekeeper "github.com/goliatone/go-gatekeeper"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// setupDB opens an isolated in-memory SQLite database with the schema
// created.
func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, gatekeeper.CreateSchema(context.Background(), db))

	return db
}

func setupManager(t *testing.T, opts ...gatekeeper.ManagerOption) gatekeeper.RepositoryManager {
	t.Helper()
	return gatekeeper.NewRepositoryManager(setupDB(t), opts...)
}

func newTokenService() gatekeeper.TokenService {
	return gatekeeper.NewTokenService(
		gatekeeper.StaticSecret("test-signing-key"),
		24,
		"test-issuer",
		[]string{"test:audience"},
		silentLogger{},
	)
}

type capturingSink struct {
	events []gatekeeper.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt gatekeeper.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) byType(eventType gatekeeper.ActivityEventType) []gatekeeper.ActivityEvent {
	var out []gatekeeper.ActivityEvent
	for _, evt := range c.events {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}
