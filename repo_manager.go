package gatekeeper

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Whitelist() Whitelist
	Sessions() Sessions
	Activity() ActivityLog
	MagicLinks() MagicLinkStore
}

type mngr struct {
	db         *bun.DB
	users      Users
	whitelist  Whitelist
	sessions   Sessions
	activity   ActivityLog
	magicLinks MagicLinkStore
}

// ManagerOption customizes repository manager construction.
type ManagerOption func(*mngr)

// WithMagicLinkStore swaps the default bun-backed link store, e.g. for the
// Redis store with native TTL.
func WithMagicLinkStore(store MagicLinkStore) ManagerOption {
	return func(m *mngr) {
		if store != nil {
			m.magicLinks = store
		}
	}
}

// WithSessions swaps the session store implementation.
func WithSessions(sessions Sessions) ManagerOption {
	return func(m *mngr) {
		if sessions != nil {
			m.sessions = sessions
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:         db,
		users:      NewUsersRepository(db),
		whitelist:  NewWhitelistRepository(db),
		sessions:   NewSessionsRepository(db),
		activity:   NewActivityLogRepository(db),
		magicLinks: NewMagicLinkRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.whitelist == nil {
		return errors.New("repository whitelist should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.activity == nil {
		return errors.New("repository activity should be initialized")
	}

	if m.magicLinks == nil {
		return errors.New("repository magicLinks should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Whitelist() Whitelist {
	return m.whitelist
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) Activity() ActivityLog {
	return m.activity
}

func (m mngr) MagicLinks() MagicLinkStore {
	return m.magicLinks
}
