package gatekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLinkKeyPrefix = "gatekeeper:link:"

// redisMagicLinks keeps links in Redis with a native TTL, expired links
// simply vanish. Redeem uses GETDEL so a link can only be claimed once even
// under concurrent redemption.
type redisMagicLinks struct {
	client *redis.Client
	ttl    time.Duration
}

var _ MagicLinkStore = (*redisMagicLinks)(nil)

// RedisLinkOption customizes the Redis link store.
type RedisLinkOption func(*redisMagicLinks)

// WithRedisLinkTTL overrides the default redemption window.
func WithRedisLinkTTL(ttl time.Duration) RedisLinkOption {
	return func(r *redisMagicLinks) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewRedisMagicLinkStore(client *redis.Client, opts ...RedisLinkOption) MagicLinkStore {
	r := &redisMagicLinks{
		client: client,
		ttl:    DefaultLinkTTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func redisLinkKey(id uuid.UUID) string {
	return redisLinkKeyPrefix + id.String()
}

func (r *redisMagicLinks) Create(ctx context.Context, link *MagicLink) (*MagicLink, error) {
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

	payload, err := json.Marshal(link)
	if err != nil {
		return nil, err
	}

	if err := r.client.Set(ctx, redisLinkKey(link.ID), payload, r.ttl).Err(); err != nil {
		return nil, err
	}

	return link, nil
}

func (r *redisMagicLinks) Get(ctx context.Context, id uuid.UUID) (*MagicLink, error) {
	payload, err := r.client.Get(ctx, redisLinkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidOrExpiredLink
		}
		return nil, err
	}

	link := &MagicLink{}
	if err := json.Unmarshal(payload, link); err != nil {
		return nil, err
	}

	return link, nil
}

// MarkSent rewrites the record keeping the original TTL, sending the link
// does not extend the redemption window.
func (r *redisMagicLinks) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	link, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if link.Status != LinkRequested {
		return nil
	}

	link.Status = LinkSent
	link.SentAt = &at

	payload, err := json.Marshal(link)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, redisLinkKey(id), payload, redis.KeepTTL).Err()
}

func (r *redisMagicLinks) Redeem(ctx context.Context, id uuid.UUID, now time.Time) (*MagicLink, error) {
	payload, err := r.client.GetDel(ctx, redisLinkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidOrExpiredLink
		}
		return nil, err
	}

	link := &MagicLink{}
	if err := json.Unmarshal(payload, link); err != nil {
		return nil, err
	}

	if link.Status == LinkRedeemed || link.Status == LinkExpired {
		return nil, ErrInvalidOrExpiredLink
	}

	link.Status = LinkRedeemed
	link.RedeemedAt = &now

	return link, nil
}
