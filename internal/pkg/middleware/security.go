package middleware

import "github.com/gofiber/fiber/v2"

const viewerCSP = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data:; connect-src 'self'; frame-ancestors 'none'"

// SecurityHeaders sets the response headers shared by every route.
func SecurityHeaders(c *fiber.Ctx) error {
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set(fiber.HeaderReferrerPolicy, "strict-origin-when-cross-origin")
	return c.Next()
}

// ViewerHeaders locks down responses that stream purchased documents.
// The CSP is only applied here; the JSON API does not need it.
func ViewerHeaders(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentSecurityPolicy, viewerCSP)
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	return c.Next()
}
