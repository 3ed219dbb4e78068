package gatekeeper

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultLinkTTL is the redemption window for a sign-in link.
const DefaultLinkTTL = 15 * time.Minute

// MagicLinkStore persists single-use sign-in links. Redeem is the only
// consuming operation and must be atomic, two concurrent redemptions of the
// same link yield exactly one success.
type MagicLinkStore interface {
	Create(ctx context.Context, link *MagicLink) (*MagicLink, error)
	Get(ctx context.Context, id uuid.UUID) (*MagicLink, error)

	// MarkSent records the moment the notifier accepted the link.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// Redeem claims the link. Absent, already-redeemed, and stale links all
	// fail with ErrInvalidOrExpiredLink, callers never learn which it was.
	Redeem(ctx context.Context, id uuid.UUID, now time.Time) (*MagicLink, error)
}

// LinkNotifier delivers a sign-in link to the address that requested it.
type LinkNotifier interface {
	Notify(ctx context.Context, link *MagicLink) error
}

// LinkNotifierFunc adapts a function to the LinkNotifier interface.
type LinkNotifierFunc func(ctx context.Context, link *MagicLink) error

// Notify implements LinkNotifier.
func (f LinkNotifierFunc) Notify(ctx context.Context, link *MagicLink) error {
	if f == nil {
		return nil
	}
	return f(ctx, link)
}

// NewLogLinkNotifier returns a notifier that only logs the link. Useful for
// development and tests, swap in a real mailer for production.
func NewLogLinkNotifier(logger Logger) LinkNotifier {
	if logger == nil {
		logger = defLogger{}
	}

	return LinkNotifierFunc(func(_ context.Context, link *MagicLink) error {
		logger.Info("magic link for %s: %s", link.Email, link.ID.String())
		return nil
	})
}

func normalizeLinkNotifier(n LinkNotifier) LinkNotifier {
	if n == nil {
		return NewLogLinkNotifier(nil)
	}
	return n
}
