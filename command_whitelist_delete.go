package gatekeeper

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DeleteWhitelistUserMessage removes an approval and offboards the account
// behind it, if one exists.
type DeleteWhitelistUserMessage struct {
	Email string   `json:"email" doc:"Address being removed"`
	Actor ActorRef `json:"-"`
}

func (e DeleteWhitelistUserMessage) Type() string { return "admin.whitelist.delete" }

// CascadeResult describes each step of the offboarding pipeline. The steps
// are independent, a failure in one does not stop the others.
type CascadeResult struct {
	EntryExisted   bool         `json:"entry_existed"`
	UserFound      bool         `json:"user_found"`
	HadRegistered  bool         `json:"had_registered"`
	Deactivated    bool         `json:"deactivated"`
	Sessions       RevokeResult `json:"sessions"`
	LookupError    string       `json:"lookup_error,omitempty"`
	CascadeError   string       `json:"cascade_error,omitempty"`
	WhitelistError string       `json:"whitelist_error,omitempty"`
}

type DeleteWhitelistUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewDeleteWhitelistUserHandler creates a handler with sane defaults.
func NewDeleteWhitelistUserHandler(repo RepositoryManager) *DeleteWhitelistUserHandler {
	return &DeleteWhitelistUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit offboarding events.
func (h *DeleteWhitelistUserHandler) WithActivitySink(sink ActivitySink) *DeleteWhitelistUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *DeleteWhitelistUserHandler) WithLogger(logger Logger) *DeleteWhitelistUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteWhitelistUserHandler) Execute(ctx context.Context, event DeleteWhitelistUserMessage) (*CascadeResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during whitelist delete",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute runs the offboarding pipeline: tolerant user lookup, idempotent
// whitelist delete, conditional deactivation with session revocation, then a
// single audit entry describing whatever actually happened. The call only
// fails when the whitelist delete itself fails for a reason other than
// absence.
func (h *DeleteWhitelistUserHandler) execute(ctx context.Context, event DeleteWhitelistUserMessage) (*CascadeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	now := time.Now()
	result := &CascadeResult{}

	// (a) tolerant lookup, an error here must not abort the delete
	user, err := h.repo.Users().GetByEmail(ctx, email)
	switch {
	case err == nil:
		result.UserFound = true
		result.HadRegistered = true
	case goerrors.IsNotFound(err):
		// never registered, nothing to offboard
	default:
		result.LookupError = err.Error()
		h.logger.Warn("user lookup failed during whitelist delete for %s: %v", email, err)
	}

	// (b) the whitelist delete is the only step that can fail the call
	existed, err := h.repo.Whitelist().Remove(ctx, email)
	if err != nil && !goerrors.IsNotFound(err) {
		result.WhitelistError = err.Error()
		h.recordCascade(ctx, event, user, result)
		return result, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete whitelist entry")
	}
	result.EntryExisted = existed

	// (c) offboard the account behind the approval
	if result.UserFound && !user.IsDeactivated {
		if _, err := h.repo.Users().Deactivate(ctx, user.ID, now); err != nil {
			result.CascadeError = err.Error()
			h.logger.Warn("deactivation failed during whitelist delete for %s: %v", email, err)
		} else {
			result.Deactivated = true

			revoked, err := h.repo.Sessions().RevokeAll(ctx, user.ID, TokenTypeSession)
			if err != nil {
				result.CascadeError = err.Error()
				h.logger.Warn("session revocation failed during whitelist delete for %s: %v", email, err)
			}
			result.Sessions = revoked
		}
	}

	// (d) one audit entry regardless of partial failures above
	h.recordCascade(ctx, event, user, result)

	return result, nil
}

func (h *DeleteWhitelistUserHandler) recordCascade(ctx context.Context, event DeleteWhitelistUserMessage, user *User, result *CascadeResult) {
	activity := ActivityEvent{
		EventType: ActivityEventWhitelistCascade,
		Actor:     event.Actor,
		Email:     NormalizeEmail(event.Email),
		Metadata: map[string]any{
			"entry_existed":  result.EntryExisted,
			"had_registered": result.HadRegistered,
			"deactivated":    result.Deactivated,
		},
	}

	if user != nil {
		activity.UserID = user.ID.String()
	}

	if result.Sessions.Found > 0 {
		activity.Metadata["sessions_found"] = result.Sessions.Found
		activity.Metadata["sessions_revoked"] = result.Sessions.Revoked
	}

	if result.CascadeError != "" {
		activity.Metadata["cascade_error"] = result.CascadeError
	}

	recordActivity(ctx, h.activity, h.logger, activity)
}
