package gatekeeper

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CreateSchema creates the backing tables if they do not exist. Meant for
// embedded SQLite deployments and tests, use real migrations elsewhere.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*WhitelistEntry)(nil),
		(*User)(nil),
		(*SessionToken)(nil),
		(*MagicLink)(nil),
		(*ActivityRecord)(nil),
	}

	for _, model := range models {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}

	return nil
}
