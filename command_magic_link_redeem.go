package gatekeeper

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RedeemMagicLinkMessage exchanges a one-time link token for a session.
type RedeemMagicLinkMessage struct {
	Token     string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Magic link token"`
	DeviceID  string `json:"device_id,omitempty" doc:"Client supplied device identifier"`
	IPAddress string `json:"-"`
}

func (e RedeemMagicLinkMessage) Type() string { return "auth.link.redeem" }

// Validate checks the message shape.
func (e RedeemMagicLinkMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
	)
}

// SessionGrant is the result of a successful redemption.
type SessionGrant struct {
	Token     string    `json:"token"`
	SessionID uuid.UUID `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type RedeemMagicLinkHandler struct {
	repo         RepositoryManager
	tokens       TokenService
	autoApproved DomainAllowlist
	sessionTTL   time.Duration
	activity     ActivitySink
	logger       Logger
}

// NewRedeemMagicLinkHandler creates a handler with sane defaults.
func NewRedeemMagicLinkHandler(repo RepositoryManager, tokens TokenService) *RedeemMagicLinkHandler {
	return &RedeemMagicLinkHandler{
		repo:       repo,
		tokens:     tokens,
		sessionTTL: 24 * time.Hour,
		activity:   noopActivitySink{},
		logger:     defLogger{},
	}
}

// WithAutoApprovedDomains sets the domains that bypass the whitelist check.
func (h *RedeemMagicLinkHandler) WithAutoApprovedDomains(domains ...string) *RedeemMagicLinkHandler {
	h.autoApproved = NewDomainAllowlist(domains...)
	return h
}

// WithSessionTTL overrides the session record lifetime.
func (h *RedeemMagicLinkHandler) WithSessionTTL(ttl time.Duration) *RedeemMagicLinkHandler {
	if ttl > 0 {
		h.sessionTTL = ttl
	}
	return h
}

// WithActivitySink sets the sink used to emit login events.
func (h *RedeemMagicLinkHandler) WithActivitySink(sink ActivitySink) *RedeemMagicLinkHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RedeemMagicLinkHandler) WithLogger(logger Logger) *RedeemMagicLinkHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RedeemMagicLinkHandler) Execute(ctx context.Context, event RedeemMagicLinkMessage) (*SessionGrant, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during magic link redemption",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RedeemMagicLinkHandler) execute(ctx context.Context, event RedeemMagicLinkMessage) (*SessionGrant, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid redemption request").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := time.Now()

	linkID, err := uuid.Parse(event.Token)
	if err != nil {
		// malformed tokens are indistinguishable from expired ones on purpose
		return nil, ErrInvalidOrExpiredLink
	}

	link, err := h.repo.MagicLinks().Redeem(ctx, linkID, now)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to claim magic link")
	}

	user := &User{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var entry *WhitelistEntry

		if !h.autoApproved.ContainsEmail(link.Email) {
			entry, err = h.repo.Whitelist().GetByEmailTx(ctx, tx, link.Email)
			if err != nil {
				if goerrors.IsNotFound(err) {
					return ErrNotAuthorized
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not check whitelist")
			}

			if entry.ExpiredAt(now) && !entry.HasRegistered() {
				return ErrInvitationExpired
			}
		}

		user, err = h.repo.Users().GetByEmailTx(ctx, tx, link.Email)
		if err != nil {
			if !goerrors.IsNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not look up user")
			}

			// first redemption creates the profile, role frozen from the
			// whitelist entry at this instant
			user = &User{
				Email: link.Email,
				Role:  RoleBasic,
			}
			if entry != nil {
				user.Role = entry.Role
				user.ExpirationDate = entry.ExpirationDate
			}

			if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
			}

			if entry != nil {
				if err := h.repo.Whitelist().MarkRegisteredTx(ctx, tx, link.Email, now); err != nil {
					return goerrors.Wrap(err, goerrors.CategoryInternal, "could not mark whitelist entry registered")
				}
			}
		}

		if user.IsDeactivated {
			return ErrAccountDeactivated
		}

		if user.ExpiredAt(now) {
			return ErrAccountExpired
		}

		return nil
	})

	if err != nil {
		h.recordFailure(ctx, link, event, err)

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "magic link redemption failed")
	}

	session, err := h.repo.Sessions().Create(ctx, user.ID, TokenTypeSession, h.sessionTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	signed, err := h.signSession(user, session)
	if err != nil {
		return nil, err
	}

	if err := h.repo.Users().TouchLastActive(ctx, user.ID, now); err != nil {
		h.logger.Warn("failed to touch last_active_at for %s: %v", user.ID, err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventLogin,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Email:     user.Email,
		DeviceID:  event.DeviceID,
		IPAddress: event.IPAddress,
		Metadata: map[string]any{
			"link_id":    link.ID.String(),
			"session_id": session.ID.String(),
		},
	})

	return &SessionGrant{
		Token:     signed,
		SessionID: session.ID,
		ExpiresAt: *session.ExpiresAt,
		User:      user,
	}, nil
}

// signSession mints a JWT whose jti matches the session row so the token can
// be tied back to its revocation handle.
func (h *RedeemMagicLinkHandler) signSession(user *User, session *SessionToken) (string, error) {
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID.String(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(*session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(*session.ExpiresAt),
		},
		UID:       user.ID.String(),
		UserEmail: user.Email,
		UserRole:  string(user.Role),
	}

	signed, err := h.tokens.SignClaims(claims)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

func (h *RedeemMagicLinkHandler) recordFailure(ctx context.Context, link *MagicLink, event RedeemMagicLinkMessage, cause error) {
	metadata := map[string]any{
		"link_id": link.ID.String(),
	}

	var richErr *goerrors.Error
	if goerrors.As(cause, &richErr) && richErr.TextCode != "" {
		metadata["reason"] = richErr.TextCode
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Email:     link.Email,
		DeviceID:  event.DeviceID,
		IPAddress: event.IPAddress,
		Metadata:  metadata,
	})
}
