package gatekeeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type magicLinks struct {
	db  *bun.DB
	ttl time.Duration
}

var _ MagicLinkStore = (*magicLinks)(nil)

// MagicLinkOption customizes link store construction.
type MagicLinkOption func(*magicLinks)

// WithLinkTTL overrides the default redemption window.
func WithLinkTTL(ttl time.Duration) MagicLinkOption {
	return func(m *magicLinks) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewMagicLinkRepository(db *bun.DB, opts ...MagicLinkOption) MagicLinkStore {
	m := &magicLinks{
		db:  db,
		ttl: DefaultLinkTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *magicLinks) Create(ctx context.Context, link *MagicLink) (*MagicLink, error) {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	link.Email = NormalizeEmail(link.Email)

	if link.Status == "" {
		link.Status = LinkRequested
	}

	if link.RequestedAt == nil {
		now := time.Now()
		link.RequestedAt = &now
	}

	if _, err := m.db.NewInsert().Model(link).Exec(ctx); err != nil {
		return nil, err
	}

	return link, nil
}

func (m *magicLinks) Get(ctx context.Context, id uuid.UUID) (*MagicLink, error) {
	record := &MagicLink{}

	err := m.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (m *magicLinks) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := m.db.NewUpdate().
		Model((*MagicLink)(nil)).
		Set("status = ?", LinkSent).
		Set("sent_at = ?", at).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.status = ?", LinkRequested).
		Exec(ctx)
	return err
}

// Redeem claims the link with a single conditional update so concurrent
// redemptions race on rows affected, not on a read-then-write.
func (m *magicLinks) Redeem(ctx context.Context, id uuid.UUID, now time.Time) (*MagicLink, error) {
	threshold := now.Add(-m.ttl)

	res, err := m.db.NewUpdate().
		Model((*MagicLink)(nil)).
		Set("status = ?", LinkRedeemed).
		Set("redeemed_at = ?", now).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.status IN (?, ?)", LinkRequested, LinkSent).
		Where("?TableAlias.requested_at > ?", threshold).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		// mark stale rows so the trail shows why the claim failed
		_, _ = m.db.NewUpdate().
			Model((*MagicLink)(nil)).
			Set("status = ?", LinkExpired).
			Where("?TableAlias.id = ?", id.String()).
			Where("?TableAlias.status IN (?, ?)", LinkRequested, LinkSent).
			Exec(ctx)

		return nil, ErrInvalidOrExpiredLink
	}

	record, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return record, nil
}
