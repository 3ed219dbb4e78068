package gatekeeper

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DeactivateUserMessage soft-deletes a profile and revokes its sessions.
type DeactivateUserMessage struct {
	UserID uuid.UUID `json:"user_id" doc:"User being deactivated"`
	Actor  ActorRef  `json:"-"`
	Reason string    `json:"reason,omitempty" doc:"Free-form audit note"`
}

func (e DeactivateUserMessage) Type() string { return "admin.user.deactivate" }

type DeactivateUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewDeactivateUserHandler creates a handler with sane defaults.
func NewDeactivateUserHandler(repo RepositoryManager) *DeactivateUserHandler {
	return &DeactivateUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit deactivation events.
func (h *DeactivateUserHandler) WithActivitySink(sink ActivitySink) *DeactivateUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *DeactivateUserHandler) WithLogger(logger Logger) *DeactivateUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeactivateUserHandler) Execute(ctx context.Context, event DeactivateUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user deactivation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeactivateUserHandler) execute(ctx context.Context, event DeactivateUserMessage) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := time.Now()

	user, err := h.repo.Users().GetByID(ctx, event.UserID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not look up user")
	}

	if user.IsDeactivated {
		return nil, ErrAlreadyDeactivated
	}

	user, err = h.repo.Users().Deactivate(ctx, event.UserID, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deactivate user")
	}

	// the directory state is authoritative, a revocation failure never undoes
	// the deactivation
	revoked := h.revokeSessions(ctx, event.UserID, user.Email, event)

	metadata := map[string]any{
		"sessions_found":   revoked.Found,
		"sessions_revoked": revoked.Revoked,
	}
	if len(revoked.Failed) > 0 {
		metadata["sessions_failed"] = revoked.Failed
	}
	if event.Reason != "" {
		metadata["reason"] = event.Reason
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserDeactivated,
		Actor:     event.Actor,
		UserID:    user.ID.String(),
		Email:     user.Email,
		Metadata:  metadata,
	})

	return user, nil
}

func (h *DeactivateUserHandler) revokeSessions(ctx context.Context, userID uuid.UUID, email string, event DeactivateUserMessage) RevokeResult {
	result, err := h.repo.Sessions().RevokeAll(ctx, userID, TokenTypeSession)
	if err != nil {
		h.logger.Warn("session revocation failed for %s: %v", userID, err)

		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventSessionsRevokeFail,
			Actor:     event.Actor,
			UserID:    userID.String(),
			Email:     email,
			Metadata:  map[string]any{"error": err.Error()},
		})
		return result
	}

	if len(result.Failed) > 0 {
		h.logger.Warn("failed to revoke %d of %d sessions for %s", len(result.Failed), result.Found, userID)
	}

	return result
}
