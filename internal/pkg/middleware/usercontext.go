package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// UserContextMiddleware resolves the access token of every request into a
// usercontext.UserContext. Requests without a valid token continue as anonymous.
func UserContextMiddleware(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := sessions.ParseAccess(raw)
		if err != nil || claims.UserID() == 0 {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:       claims.UserID(),
			Email:        claims.Email,
			Name:         claims.Name,
			ProfileType:  claims.ProfileType,
			IsLoggedIn:   true,
			IsManagement: claims.Management,
			IsClient:     claims.ProfileType == models.PROFILE_CLIENT,
		})
		c.Locals(usercontext.KeyClaims, claims)
		return c.Next()
	}
}
