package gatekeeper

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// ClaimsLocalKey is the fiber.Ctx locals key the auth middleware stores
// validated claims under.
const ClaimsLocalKey = "claims"

// NewAuthMiddleware validates the Bearer token and stashes the claims in both
// fiber locals and the request context. Requests without a valid token are
// answered with 401, role checks belong to RequireRole.
func NewAuthMiddleware(tokens TokenService, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			return writeError(c, ErrTokenInvalid)
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			logger.Debug("token validation failed: %v", err)
			return writeError(c, err)
		}

		c.Locals(ClaimsLocalKey, claims)
		c.SetUserContext(WithClaimsContext(c.UserContext(), claims))

		return c.Next()
	}
}

// RequireRole gates a route on a minimum role. A missing or unreadable claim
// set is an authentication failure (401), an insufficient role an
// authorization failure (403), the two are never conflated.
func RequireRole(minRole UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromFiber(c)
		if !ok {
			return writeError(c, ErrTokenInvalid)
		}

		if !claims.IsAtLeast(string(minRole)) {
			return writeError(c, goerrors.New("insufficient role", goerrors.CategoryAuthz).
				WithTextCode("INSUFFICIENT_ROLE").
				WithCode(goerrors.CodeForbidden).
				WithMetadata(map[string]any{
					"required": string(minRole),
				}))
		}

		return c.Next()
	}
}

// ClaimsFromFiber extracts the validated claims the auth middleware stored.
func ClaimsFromFiber(c *fiber.Ctx) (AuthClaims, bool) {
	raw := c.Locals(ClaimsLocalKey)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// writeError renders the uniform error body. Rich errors keep their status
// and text code, anything else collapses into an opaque 500.
func writeError(c *fiber.Ctx, err error) error {
	status, richErr := StatusFromError(err)

	body := fiber.Map{"error": richErr.TextCode}
	if body["error"] == "" {
		body["error"] = string(richErr.Category)
	}
	if richErr.Message != "" {
		body["message"] = richErr.Message
	}

	return c.Status(status).JSON(body)
}
