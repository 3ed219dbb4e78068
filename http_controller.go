package gatekeeper

import (
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// ControllerRoutes holds the route prefixes the controller mounts under.
type ControllerRoutes struct {
	MagicLink       string
	MagicLinkRedeem string
	Admin           string
}

// Controller is the JSON HTTP surface: passwordless sign in plus the
// role-gated admin API.
type Controller struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Tokens       TokenService
	Activity     ActivitySink
	Notifier     LinkNotifier
	Routes       *ControllerRoutes
	SessionTTL   time.Duration
	AutoApproved []string
}

type ControllerOption func(*Controller) *Controller

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRepo sets the repository manager.
func WithControllerRepo(repo RepositoryManager) ControllerOption {
	return func(c *Controller) *Controller {
		c.Repo = repo
		return c
	}
}

// WithControllerTokens sets the token service.
func WithControllerTokens(tokens TokenService) ControllerOption {
	return func(c *Controller) *Controller {
		c.Tokens = tokens
		return c
	}
}

// WithControllerActivity sets the audit sink shared by every handler.
func WithControllerActivity(sink ActivitySink) ControllerOption {
	return func(c *Controller) *Controller {
		c.Activity = normalizeActivitySink(sink)
		return c
	}
}

// WithControllerNotifier sets the magic link delivery channel.
func WithControllerNotifier(notifier LinkNotifier) ControllerOption {
	return func(c *Controller) *Controller {
		c.Notifier = normalizeLinkNotifier(notifier)
		return c
	}
}

// WithControllerSessionTTL sets the issued session lifetime.
func WithControllerSessionTTL(ttl time.Duration) ControllerOption {
	return func(c *Controller) *Controller {
		if ttl > 0 {
			c.SessionTTL = ttl
		}
		return c
	}
}

// WithControllerAutoApprovedDomains sets the domains that bypass the
// whitelist.
func WithControllerAutoApprovedDomains(domains ...string) ControllerOption {
	return func(c *Controller) *Controller {
		c.AutoApproved = domains
		return c
	}
}

// WithControllerDebug toggles request dumping.
func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:     defLogger{},
		Activity:   noopActivitySink{},
		Notifier:   NewLogLinkNotifier(nil),
		SessionTTL: 24 * time.Hour,
		Routes: &ControllerRoutes{
			MagicLink:       "/auth/magic-link",
			MagicLinkRedeem: "/auth/magic-link/redeem",
			Admin:           "/admin",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in gatekeeper controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in gatekeeper controller...")
	}

	return c
}

// RegisterRoutes mounts the HTTP surface on the app. Everything under /admin
// is Bearer-JWT gated except the health probe, the activity self-log endpoint
// accepts any authenticated role.
func RegisterRoutes(app *fiber.App, opts ...ControllerOption) *Controller {
	controller := NewController(opts...)

	app.Use(recover.New())
	app.Use(cors.New())

	app.Post(controller.Routes.MagicLink, controller.MagicLinkRequest)
	app.Post(controller.Routes.MagicLinkRedeem, controller.MagicLinkRedeem)

	admin := app.Group(controller.Routes.Admin)
	admin.Get("/health", controller.Health)

	admin.Use(NewAuthMiddleware(controller.Tokens, controller.Logger))
	admin.Post("/activity/log", RequireRole(RoleBasic), controller.ActivitySelfLog)

	admin.Use(RequireRole(RoleAdmin))
	admin.Get("/users", controller.ListUsers)
	admin.Get("/users/:id", controller.GetUser)
	admin.Put("/users/:id", controller.UpdateUser)
	admin.Delete("/users/:id", controller.DeactivateUser)
	admin.Get("/whitelist", controller.ListWhitelist)
	admin.Post("/whitelist", controller.AddWhitelistEntry)
	admin.Delete("/whitelist/:email", controller.DeleteWhitelistUser)
	admin.Get("/activity", controller.ListActivity)

	return controller
}

// Health is the unauthenticated liveness probe.
func (a *Controller) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (a *Controller) MagicLinkRequest(c *fiber.Ctx) error {
	payload := new(RequestMagicLinkMessage)

	if err := c.BodyParser(payload); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	payload.IPAddress = c.IP()

	if a.Debug {
		fmt.Println("======= MAGIC LINK ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	handler := NewRequestMagicLinkHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := handler.Execute(c.UserContext(), *payload); err != nil {
		a.Logger.Error("magic link request error: %v", err)
		return writeError(c, err)
	}

	// same response for known and unknown emails, no enumeration oracle
	return c.JSON(fiber.Map{"sent": true})
}

func (a *Controller) MagicLinkRedeem(c *fiber.Ctx) error {
	payload := new(RedeemMagicLinkMessage)

	if err := c.BodyParser(payload); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	payload.IPAddress = c.IP()

	handler := NewRedeemMagicLinkHandler(a.Repo, a.Tokens).
		WithAutoApprovedDomains(a.AutoApproved...).
		WithSessionTTL(a.SessionTTL).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	grant, err := handler.Execute(c.UserContext(), *payload)
	if err != nil {
		a.Logger.Error("magic link redeem error: %v", err)
		return writeError(c, err)
	}

	return c.JSON(grant)
}

// ListUsersResponse is the directory listing envelope.
type ListUsersResponse struct {
	Users      []*User    `json:"users"`
	Pagination Pagination `json:"pagination"`
}

func (a *Controller) ListUsers(c *fiber.Ctx) error {
	criteria := ListUsersCriteria{
		Page: NormalizePageRequest(PageRequest{
			Page:  c.QueryInt("page", DefaultPage),
			Limit: c.QueryInt("limit", DefaultPageSize),
		}),
		EmailFilter:     c.Query("emailFilter"),
		SortBy:          c.Query("sortBy"),
		ShowDeactivated: c.QueryBool("showDeactivated", false),
	}

	records, total, err := a.Repo.Users().Search(c.UserContext(), criteria)
	if err != nil {
		a.Logger.Error("list users error: %v", err)
		return writeError(c, err)
	}

	if records == nil {
		records = []*User{}
	}

	return c.JSON(ListUsersResponse{
		Users:      records,
		Pagination: NewPagination(criteria.Page, total),
	})
}

func (a *Controller) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	user, err := a.Repo.Users().GetByID(c.UserContext(), id.String())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(user)
}

// UpdateUserPayload is the partial admin update body.
type UpdateUserPayload struct {
	Role           *string    `json:"role,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Reactivate     bool       `json:"reactivate,omitempty"`
}

// Validate will run validation rules
func (r UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.By(func(value interface{}) error {
			if r.Role == nil {
				return nil
			}
			if _, ok := ParseRole(*r.Role); !ok {
				return goerrors.New("role must be one of: basic, admin", goerrors.CategoryValidation)
			}
			return nil
		})),
	)
}

func (a *Controller) UpdateUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	payload := new(UpdateUserPayload)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user update").
			WithCode(goerrors.CodeBadRequest))
	}

	ctx := c.UserContext()

	user, err := a.Repo.Users().GetByID(ctx, id.String())
	if err != nil {
		return writeError(c, err)
	}

	update := UserUpdate{ExpirationDate: payload.ExpirationDate}
	if payload.Role != nil {
		role, _ := ParseRole(*payload.Role)
		update.Role = &role
	}

	user, err = a.Repo.Users().Apply(ctx, id, update)
	if err != nil {
		a.Logger.Error("update user error: %v", err)
		return writeError(c, err)
	}

	// reactivate on an already active account is a no-op, not an error
	reactivated := false
	if payload.Reactivate && user.IsDeactivated {
		if user, err = a.Repo.Users().Reactivate(ctx, id); err != nil {
			a.Logger.Error("reactivate user error: %v", err)
			return writeError(c, err)
		}
		reactivated = true
	}

	eventType := ActivityEventUserUpdated
	if reactivated {
		eventType = ActivityEventUserReactivated
	}

	recordActivity(ctx, a.Activity, a.Logger, ActivityEvent{
		EventType: eventType,
		Actor:     a.actorFromClaims(c),
		UserID:    user.ID.String(),
		Email:     user.Email,
		Metadata: map[string]any{
			"role_changed":       payload.Role != nil,
			"expiration_changed": payload.ExpirationDate != nil,
		},
	})

	return c.JSON(user)
}

func (a *Controller) DeactivateUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, goerrors.New("invalid user id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	handler := NewDeactivateUserHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	user, err := handler.Execute(c.UserContext(), DeactivateUserMessage{
		UserID: id,
		Actor:  a.actorFromClaims(c),
	})
	if err != nil {
		a.Logger.Error("deactivate user error: %v", err)
		return writeError(c, err)
	}

	return c.JSON(user)
}

// WhitelistEntryView decorates an entry with the registration flag.
type WhitelistEntryView struct {
	*WhitelistEntry
	HasRegistered bool `json:"has_registered"`
}

func (a *Controller) ListWhitelist(c *fiber.Ctx) error {
	entries, err := a.Repo.Whitelist().ListEntries(c.UserContext())
	if err != nil {
		a.Logger.Error("list whitelist error: %v", err)
		return writeError(c, err)
	}

	views := make([]WhitelistEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, WhitelistEntryView{
			WhitelistEntry: entry,
			HasRegistered:  entry.HasRegistered(),
		})
	}

	return c.JSON(fiber.Map{"entries": views})
}

func (a *Controller) AddWhitelistEntry(c *fiber.Ctx) error {
	payload := new(AddWhitelistEntryMessage)

	if err := c.BodyParser(payload); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if claims, ok := ClaimsFromFiber(c); ok {
		payload.ApprovedBy = claims.UserID()
	}

	handler := NewAddWhitelistEntryHandler(a.Repo).
		WithAutoApprovedDomains(a.AutoApproved...).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	entry, err := handler.Execute(c.UserContext(), *payload)
	if err != nil {
		a.Logger.Error("add whitelist entry error: %v", err)
		return writeError(c, err)
	}

	return c.JSON(WhitelistEntryView{
		WhitelistEntry: entry,
		HasRegistered:  entry.HasRegistered(),
	})
}

func (a *Controller) DeleteWhitelistUser(c *fiber.Ctx) error {
	email, err := url.QueryUnescape(c.Params("email"))
	if err != nil || email == "" {
		return writeError(c, goerrors.New("invalid email parameter", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest))
	}

	handler := NewDeleteWhitelistUserHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	result, err := handler.Execute(c.UserContext(), DeleteWhitelistUserMessage{
		Email: email,
		Actor: a.actorFromClaims(c),
	})
	if err != nil {
		a.Logger.Error("delete whitelist user error: %v", err)
		return writeError(c, err)
	}

	if a.Debug {
		fmt.Println("======= WHITELIST DELETE ======")
		fmt.Println(print.MaybePrettyJSON(result))
		fmt.Println("===============================")
	}

	return c.JSON(result)
}

// ListActivityResponse is the audit trail envelope.
type ListActivityResponse struct {
	Activities []*ActivityRecord `json:"activities"`
	Pagination Pagination        `json:"pagination"`
}

func (a *Controller) ListActivity(c *fiber.Ctx) error {
	criteria := ActivityCriteria{
		Page: NormalizePageRequest(PageRequest{
			Page:  c.QueryInt("page", DefaultPage),
			Limit: c.QueryInt("limit", DefaultPageSize),
		}),
		EmailFilter:     c.Query("emailFilter"),
		EventTypeFilter: c.Query("eventTypeFilter"),
	}

	records, total, err := a.Repo.Activity().List(c.UserContext(), criteria)
	if err != nil {
		a.Logger.Error("list activity error: %v", err)
		return writeError(c, err)
	}

	if records == nil {
		records = []*ActivityRecord{}
	}

	return c.JSON(ListActivityResponse{
		Activities: records,
		Pagination: NewPagination(criteria.Page, total),
	})
}

// ActivitySelfLogPayload is a client-reported audit event.
type ActivitySelfLogPayload struct {
	EventType string         `json:"eventType"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	DeviceID  string         `json:"deviceId,omitempty"`
}

// Validate will run validation rules
func (r ActivitySelfLogPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EventType, validation.Required, validation.Length(1, 100)),
	)
}

// ActivitySelfLog lets any authenticated user append a client-side event to
// their own trail.
func (a *Controller) ActivitySelfLog(c *fiber.Ctx) error {
	payload := new(ActivitySelfLogPayload)

	if err := c.BodyParser(payload); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return writeError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid activity event").
			WithCode(goerrors.CodeBadRequest))
	}

	claims, ok := ClaimsFromFiber(c)
	if !ok {
		return writeError(c, ErrTokenInvalid)
	}

	metadata := payload.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["client_event_type"] = payload.EventType

	recordActivity(c.UserContext(), a.Activity, a.Logger, ActivityEvent{
		EventType: ActivityEventClientReported,
		Actor:     ActorRef{ID: claims.UserID(), Type: "user"},
		UserID:    claims.UserID(),
		Email:     claims.Email(),
		DeviceID:  payload.DeviceID,
		IPAddress: c.IP(),
		Metadata:  metadata,
	})

	// Client-reported events count as activity for the lastActiveAt sort.
	if id, err := uuid.Parse(claims.UserID()); err == nil {
		if err := a.Repo.Users().TouchLastActive(c.UserContext(), id, time.Now()); err != nil {
			a.Logger.Warn("failed to update last_active_at for %s: %v", claims.UserID(), err)
		}
	}

	return c.JSON(fiber.Map{"logged": true})
}

func (a *Controller) actorFromClaims(c *fiber.Ctx) ActorRef {
	claims, ok := ClaimsFromFiber(c)
	if !ok {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: claims.UserID(), Type: claims.Role()}
}
