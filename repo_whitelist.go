package gatekeeper

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Whitelist persists pre-approval entries keyed by normalized email.
type Whitelist interface {
	repository.Repository[*WhitelistEntry]

	Put(ctx context.Context, entry *WhitelistEntry) (*WhitelistEntry, error)
	PutTx(ctx context.Context, tx bun.IDB, entry *WhitelistEntry) (*WhitelistEntry, error)

	GetByEmail(ctx context.Context, email string) (*WhitelistEntry, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*WhitelistEntry, error)

	// Remove deletes by normalized email. Deleting an absent entry is not an
	// error, the returned flag reports whether the entry existed.
	Remove(ctx context.Context, email string) (bool, error)
	RemoveTx(ctx context.Context, tx bun.IDB, email string) (bool, error)

	ListEntries(ctx context.Context) ([]*WhitelistEntry, error)

	MarkRegistered(ctx context.Context, email string, at time.Time) error
	MarkRegisteredTx(ctx context.Context, tx bun.IDB, email string, at time.Time) error
}

type whitelist struct {
	repository.Repository[*WhitelistEntry]
	db *bun.DB
}

var (
	_ Whitelist                              = (*whitelist)(nil)
	_ repository.Repository[*WhitelistEntry] = (*whitelist)(nil)
)

func NewWhitelistRepository(db *bun.DB) Whitelist {
	repo := repository.NewRepository[*WhitelistEntry](db, repository.ModelHandlers[*WhitelistEntry]{
		NewRecord: func() *WhitelistEntry { return &WhitelistEntry{} },
		GetID: func(e *WhitelistEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *WhitelistEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &whitelist{
		Repository: repo,
		db:         db,
	}
}

func (w *whitelist) Put(ctx context.Context, entry *WhitelistEntry) (*WhitelistEntry, error) {
	return w.PutTx(ctx, w.db, entry)
}

// PutTx upserts by normalized email. Re-adding an email overwrites role and
// expiration while preserving registered_at.
func (w *whitelist) PutTx(ctx context.Context, tx bun.IDB, entry *WhitelistEntry) (*WhitelistEntry, error) {
	if entry == nil {
		return nil, goerrors.New("whitelist entry must not be nil", goerrors.CategoryInternal)
	}

	entry.Email = NormalizeEmail(entry.Email)
	if entry.ID == uuid.Nil {
		if id, err := hashid.NewUUID(entry.Email); err == nil {
			entry.ID = id
		} else {
			entry.ID = uuid.New()
		}
	}

	now := time.Now()
	if entry.ApprovedAt == nil {
		entry.ApprovedAt = &now
	}

	_, err := tx.NewInsert().
		Model(entry).
		On("CONFLICT (email) DO UPDATE").
		Set("user_role = EXCLUDED.user_role").
		Set("expiration_date = EXCLUDED.expiration_date").
		Set("approved_by = EXCLUDED.approved_by").
		Set("approved_at = EXCLUDED.approved_at").
		Set("updated_at = ?", now).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return w.GetByEmailTx(ctx, tx, entry.Email)
}

func (w *whitelist) GetByEmail(ctx context.Context, email string) (*WhitelistEntry, error) {
	return w.GetByEmailTx(ctx, w.db, email)
}

func (w *whitelist) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*WhitelistEntry, error) {
	record := &WhitelistEntry{}

	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("whitelist entry not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (w *whitelist) Remove(ctx context.Context, email string) (bool, error) {
	return w.RemoveTx(ctx, w.db, email)
}

func (w *whitelist) RemoveTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	res, err := tx.NewDelete().
		Model((*WhitelistEntry)(nil)).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email)).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// driver without affected-row support, treat the delete as done
		return true, nil
	}

	return affected > 0, nil
}

// ListEntries is a full-snapshot read. The has_registered flag is computed
// from registered_at by WhitelistEntry.HasRegistered.
func (w *whitelist) ListEntries(ctx context.Context) ([]*WhitelistEntry, error) {
	var records []*WhitelistEntry

	err := w.db.NewSelect().
		Model(&records).
		Order("email ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (w *whitelist) MarkRegistered(ctx context.Context, email string, at time.Time) error {
	return w.MarkRegisteredTx(ctx, w.db, email, at)
}

func (w *whitelist) MarkRegisteredTx(ctx context.Context, tx bun.IDB, email string, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*WhitelistEntry)(nil)).
		Set("registered_at = ?", at).
		Set("updated_at = ?", at).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email)).
		Exec(ctx)
	return err
}
