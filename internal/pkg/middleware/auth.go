package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "authentication credentials were not provided or are invalid",
	})
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "you do not have permission to perform this action",
	})
}

// RequireAuth ensures a valid access token; answers JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorized(c)
	}
	return c.Next()
}

// RequireClient ensures the caller holds a Client profile.
func RequireClient(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return unauthorized(c)
	}
	if !uc.IsClient {
		return forbidden(c)
	}
	return c.Next()
}

// RequireManagement ensures the caller is management staff or a superuser.
func RequireManagement(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return unauthorized(c)
	}
	if !uc.IsManagement {
		return forbidden(c)
	}
	return c.Next()
}
