package gatekeeper

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// RequestMagicLinkMessage asks for a one-time sign-in link. The request
// succeeds for any well-formed email regardless of whitelist status so the
// endpoint cannot be used to enumerate approved addresses.
type RequestMagicLinkMessage struct {
	Email     string `json:"email" example:"peperone@example.com" doc:"Address the link is sent to"`
	DeviceID  string `json:"device_id,omitempty" doc:"Client supplied device identifier"`
	IPAddress string `json:"-"`
}

func (e RequestMagicLinkMessage) Type() string { return "auth.link.request" }

// Validate checks the message shape.
func (e RequestMagicLinkMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type RequestMagicLinkHandler struct {
	repo     RepositoryManager
	notifier LinkNotifier
	activity ActivitySink
	logger   Logger
}

// NewRequestMagicLinkHandler creates a handler with sane defaults.
func NewRequestMagicLinkHandler(repo RepositoryManager) *RequestMagicLinkHandler {
	return &RequestMagicLinkHandler{
		repo:     repo,
		notifier: NewLogLinkNotifier(nil),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the delivery channel for issued links.
func (h *RequestMagicLinkHandler) WithNotifier(notifier LinkNotifier) *RequestMagicLinkHandler {
	h.notifier = normalizeLinkNotifier(notifier)
	return h
}

// WithActivitySink sets the sink used to emit link request events.
func (h *RequestMagicLinkHandler) WithActivitySink(sink ActivitySink) *RequestMagicLinkHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestMagicLinkHandler) WithLogger(logger Logger) *RequestMagicLinkHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestMagicLinkHandler) Execute(ctx context.Context, event RequestMagicLinkMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during magic link request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestMagicLinkHandler) execute(ctx context.Context, event RequestMagicLinkMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid magic link request").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := time.Now()

	link, err := h.repo.MagicLinks().Create(ctx, &MagicLink{
		Email:       NormalizeEmail(event.Email),
		Status:      LinkRequested,
		DeviceID:    event.DeviceID,
		IPAddress:   event.IPAddress,
		RequestedAt: &now,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue magic link")
	}

	if err := h.notifier.Notify(ctx, link); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver magic link")
	}

	if err := h.repo.MagicLinks().MarkSent(ctx, link.ID, time.Now()); err != nil {
		// the link is out the door already, keep it redeemable
		h.logger.Warn("failed to mark magic link as sent: %v", err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventLinkRequested,
		Email:     link.Email,
		DeviceID:  event.DeviceID,
		IPAddress: event.IPAddress,
		Metadata: map[string]any{
			"link_id": link.ID.String(),
		},
	})

	return nil
}
