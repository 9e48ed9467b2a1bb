package recalc

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-repository-bun"
)

// SessionCookieName is the cookie carrying the session token
const SessionCookieName = "re-calc-token"

const userContextKey = "recalc_user"

// TokenFromRequest extracts the raw session token, cookie first and
// Authorization bearer header second. An empty string means the request
// carries no credential at all.
func TokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(SessionCookieName); token != "" {
		return token
	}

	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return ""
	}

	return strings.TrimSpace(header[len(scheme):])
}

// SessionMiddleware authenticates every request it guards: token
// extraction, token validation, and a live principal lookup. Every
// failure mode collapses into the same unauthenticated error, a stale
// token for a deleted user included.
func SessionMiddleware(tokens TokenService, users Users, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		raw := TokenFromRequest(c)
		if raw == "" {
			return ErrUnauthenticated
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			logger.Debug("session rejected: %s", err)
			return ErrUnauthenticated
		}

		user, err := users.GetByID(c.UserContext(), claims.UserID())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUnauthenticated
			}
			return StorageError(err, "session principal lookup failed")
		}

		if _, err := ParseRole(string(user.Role)); err != nil {
			return err
		}

		c.Locals(userContextKey, user)

		return c.Next()
	}
}

// RequireRole guards a route with a minimum role. Runs after
// SessionMiddleware; a missing principal here is an authentication
// failure, not an authorization one.
func RequireRole(min Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return ErrUnauthenticated
		}

		if !user.Role.IsAtLeast(min) {
			return ErrForbidden
		}

		return c.Next()
	}
}

// UserFromContext returns the authenticated principal stored by
// SessionMiddleware.
func UserFromContext(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(userContextKey).(*User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}
