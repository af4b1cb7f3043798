package controllers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/ReportFox/internal/pkg/authflow"
)

// OAuthController runs the provider round trip and hands the resulting
// session pair to the frontend in the URL fragment.
type OAuthController struct {
	auth        *authflow.Service
	frontendURL string
	enabled     bool
}

func NewOAuthController(auth *authflow.Service, frontendURL string, enabled bool) *OAuthController {
	return &OAuthController{auth: auth, frontendURL: frontendURL, enabled: enabled}
}

// GET /api/auth/oauth/:provider
func (oc *OAuthController) HandleBegin(c *fiber.Ctx) error {
	if !oc.enabled {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "social login is not configured"})
	}
	return gothfiber.BeginAuthHandler(c)
}

// GET /api/auth/oauth/:provider/callback
func (oc *OAuthController) HandleCallback(c *fiber.Ctx) error {
	if !oc.enabled {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "social login is not configured"})
	}
	gu, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[OAuth] %s callback failed: %v", c.Params("provider"), err)
		return c.Redirect(oc.frontendURL+"/auth/login?error=oauth_failed", fiber.StatusSeeOther)
	}

	_, pair, err := oc.auth.LoginWithProvider(c.UserContext(), authflow.ExternalIdentity{
		Provider: gu.Provider,
		Email:    gu.Email,
		Name:     firstNonEmpty(gu.Name, gu.NickName),
	})
	if err != nil {
		log.Warnf("[OAuth] %s login rejected: %v", gu.Provider, err)
		return c.Redirect(oc.frontendURL+"/auth/login?error=oauth_failed", fiber.StatusSeeOther)
	}

	fragment := url.Values{}
	fragment.Set("access", pair.Access)
	fragment.Set("refresh", pair.Refresh)
	return c.Redirect(oc.frontendURL+"/auth/oauth#"+fragment.Encode(), fiber.StatusSeeOther)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
