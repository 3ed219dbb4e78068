package gatekeeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RevokeResult summarizes a bulk session revocation. Failed deletions do not
// abort the sweep, each remaining session is still attempted.
type RevokeResult struct {
	Found   int      `json:"found"`
	Revoked int      `json:"revoked"`
	Failed  []string `json:"failed,omitempty"`
}

// Sessions stores server-side session records. A session row is the
// revocation handle for an issued JWT, deleting it invalidates the login.
type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID, tokenType string, ttl time.Duration) (*SessionToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, tokenType string, ttl time.Duration) (*SessionToken, error)

	GetByID(ctx context.Context, id uuid.UUID) (*SessionToken, error)
	ListByUser(ctx context.Context, userID uuid.UUID, tokenType string) ([]*SessionToken, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// RevokeAll deletes every session of the given type for the user. It only
	// errors when the session list itself cannot be read, per-record failures
	// are collected in the result.
	RevokeAll(ctx context.Context, userID uuid.UUID, tokenType string) (RevokeResult, error)
}

type sessions struct {
	db     *bun.DB
	delete func(ctx context.Context, id uuid.UUID) error
}

var _ Sessions = (*sessions)(nil)

// SessionsOption customizes session store construction.
type SessionsOption func(*sessions)

// WithSessionDeleter overrides the per-record delete used by RevokeAll.
func WithSessionDeleter(del func(ctx context.Context, id uuid.UUID) error) SessionsOption {
	return func(s *sessions) {
		if del != nil {
			s.delete = del
		}
	}
}

func NewSessionsRepository(db *bun.DB, opts ...SessionsOption) Sessions {
	s := &sessions{db: db}
	s.delete = s.deleteRow

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *sessions) Create(ctx context.Context, userID uuid.UUID, tokenType string, ttl time.Duration) (*SessionToken, error) {
	return s.CreateTx(ctx, s.db, userID, tokenType, ttl)
}

func (s *sessions) CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, tokenType string, ttl time.Duration) (*SessionToken, error) {
	now := time.Now()
	expires := now.Add(ttl)

	if tokenType == "" {
		tokenType = TokenTypeSession
	}

	record := &SessionToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenType: tokenType,
		IssuedAt:  &now,
		ExpiresAt: &expires,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *sessions) GetByID(ctx context.Context, id uuid.UUID) (*SessionToken, error) {
	record := &SessionToken{}

	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *sessions) ListByUser(ctx context.Context, userID uuid.UUID, tokenType string) ([]*SessionToken, error) {
	var records []*SessionToken

	q := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID.String())

	if tokenType != "" {
		q = q.Where("?TableAlias.token_type = ?", tokenType)
	}

	err := q.Order("issued_at DESC").Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *sessions) Delete(ctx context.Context, id uuid.UUID) error {
	return s.delete(ctx, id)
}

func (s *sessions) deleteRow(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*SessionToken)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	return err
}

func (s *sessions) RevokeAll(ctx context.Context, userID uuid.UUID, tokenType string) (RevokeResult, error) {
	result := RevokeResult{}

	records, err := s.ListByUser(ctx, userID, tokenType)
	if err != nil {
		return result, err
	}

	result.Found = len(records)

	for _, record := range records {
		if err := s.delete(ctx, record.ID); err != nil {
			result.Failed = append(result.Failed, record.ID.String())
			continue
		}
		result.Revoked++
	}

	return result, nil
}
