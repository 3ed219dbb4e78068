package gatekeeper

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLogin              ActivityEventType = "login"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventLinkRequested      ActivityEventType = "auth.link.requested"
	ActivityEventUserUpdated        ActivityEventType = "admin.user.updated"
	ActivityEventUserDeactivated    ActivityEventType = "admin.user.deactivated"
	ActivityEventUserReactivated    ActivityEventType = "admin.user.reactivated"
	ActivityEventWhitelistAdded     ActivityEventType = "admin.whitelist.added"
	ActivityEventWhitelistRemoved   ActivityEventType = "admin.whitelist.removed"
	ActivityEventWhitelistCascade   ActivityEventType = "admin.whitelist.user_deleted"
	ActivityEventClientReported     ActivityEventType = "client.event"
	ActivityEventSessionsRevokeFail ActivityEventType = "session.revoke.failure"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Email      string
	DeviceID   string
	IPAddress  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Recording is best effort everywhere, a sink failure never fails the
// primary operation.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity pushes an event through the sink, logging (and otherwise
// swallowing) failures.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		if logger == nil {
			logger = defLogger{}
		}
		logger.Warn("activity sink record error: %v", err)
	}
}
