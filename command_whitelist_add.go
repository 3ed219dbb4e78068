package gatekeeper

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultSignupWindow is how long an invitation stays redeemable when the
// admin neither sets an explicit expiration nor opts out of one.
const DefaultSignupWindow = 14 * 24 * time.Hour

// AddWhitelistEntryMessage pre-approves an email for self-service
// registration. ExpirationDate and NoExpiration resolve the sign-up deadline:
// explicit date wins, NoExpiration drops the deadline, otherwise the default
// window applies.
type AddWhitelistEntryMessage struct {
	Email          string     `json:"email" example:"peperone@example.com" doc:"Address being approved"`
	Role           string     `json:"role" example:"basic" doc:"Role copied to the profile at registration"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty" doc:"Explicit sign-up deadline"`
	NoExpiration   bool       `json:"no_expiration,omitempty" doc:"Issue an invitation that never expires"`
	ApprovedBy     string     `json:"-"`
}

func (e AddWhitelistEntryMessage) Type() string { return "admin.whitelist.add" }

// Validate checks the message shape.
func (e AddWhitelistEntryMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Role, validation.Required, validation.By(func(value interface{}) error {
			if _, ok := ParseRole(e.Role); !ok {
				return goerrors.New("role must be one of: basic, admin", goerrors.CategoryValidation)
			}
			return nil
		})),
	)
}

type AddWhitelistEntryHandler struct {
	repo         RepositoryManager
	autoApproved DomainAllowlist
	activity     ActivitySink
	logger       Logger
}

// NewAddWhitelistEntryHandler creates a handler with sane defaults.
func NewAddWhitelistEntryHandler(repo RepositoryManager) *AddWhitelistEntryHandler {
	return &AddWhitelistEntryHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithAutoApprovedDomains sets the domains for which entries are rejected as
// redundant.
func (h *AddWhitelistEntryHandler) WithAutoApprovedDomains(domains ...string) *AddWhitelistEntryHandler {
	h.autoApproved = NewDomainAllowlist(domains...)
	return h
}

// WithActivitySink sets the sink used to emit whitelist events.
func (h *AddWhitelistEntryHandler) WithActivitySink(sink ActivitySink) *AddWhitelistEntryHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *AddWhitelistEntryHandler) WithLogger(logger Logger) *AddWhitelistEntryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AddWhitelistEntryHandler) Execute(ctx context.Context, event AddWhitelistEntryMessage) (*WhitelistEntry, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during whitelist add",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AddWhitelistEntryHandler) execute(ctx context.Context, event AddWhitelistEntryMessage) (*WhitelistEntry, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid whitelist entry").
			WithCode(goerrors.CodeBadRequest)
	}

	if h.autoApproved.ContainsEmail(event.Email) {
		return nil, ErrRedundantWhitelistEntry.Clone().
			WithMetadata(map[string]any{"domain": emailDomain(event.Email)})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	role, ok := ParseRole(event.Role)
	if !ok {
		role = RoleBasic
	}

	entry := &WhitelistEntry{
		Email:          NormalizeEmail(event.Email),
		Role:           role,
		ExpirationDate: resolveExpiration(event.ExpirationDate, event.NoExpiration),
		ApprovedBy:     event.ApprovedBy,
	}

	entry, err := h.repo.Whitelist().Put(ctx, entry)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store whitelist entry")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventWhitelistAdded,
		Actor:     ActorRef{ID: event.ApprovedBy, Type: "admin"},
		Email:     entry.Email,
		Metadata: map[string]any{
			"role":          string(entry.Role),
			"no_expiration": entry.ExpirationDate == nil,
		},
	})

	return entry, nil
}

func resolveExpiration(explicit *time.Time, noExpiration bool) *time.Time {
	if explicit != nil {
		return explicit
	}
	if noExpiration {
		return nil
	}
	deadline := time.Now().Add(DefaultSignupWindow)
	return &deadline
}
