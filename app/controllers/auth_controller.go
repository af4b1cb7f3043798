package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/authflow"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

const genericLinkMessage = "If an active account exists for this address, an email has been sent."

// AuthController exposes the account and session endpoints under /api/auth.
type AuthController struct {
	auth *authflow.Service
}

func NewAuthController(auth *authflow.Service) *AuthController {
	return &AuthController{auth: auth}
}

type tokenEmailRequest struct {
	Token string `json:"token" form:"token"`
	Email string `json:"email" form:"email"`
}

type emailRequest struct {
	Email   string `json:"email" form:"email"`
	Captcha string `json:"h-captcha-response" form:"h-captcha-response"`
}

type credentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" form:"refresh"`
}

type resetRequest struct {
	Token       string `json:"token" form:"token"`
	Email       string `json:"email" form:"email"`
	NewPassword string `json:"new_password" form:"new_password"`
}

func userPayload(u *models.User) fiber.Map {
	out := fiber.Map{
		"id":            u.ID,
		"name":          u.Name,
		"email":         u.Email,
		"status":        u.Status,
		"is_management": u.IsManagement(),
		"is_client":     u.IsClient(),
		"created_at":    u.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(u.LastLoginAt),
	}
	if u.Profile != nil {
		out["profile_type"] = u.Profile.Type
		out["phone"] = u.Profile.Phone
		out["gender"] = u.Profile.Gender
	}
	return out
}

func sessionPayload(u *models.User, pair *session.Pair) fiber.Map {
	return fiber.Map{
		"user":    userPayload(u),
		"access":  pair.Access,
		"refresh": pair.Refresh,
	}
}

// POST /api/auth/register
func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var in authflow.RegisterInput
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	u, err := ac.auth.Register(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful. Check your email to verify your account.",
		"user":    userPayload(u),
	})
}

// POST /api/auth/verify-email
func (ac *AuthController) HandleVerifyEmail(c *fiber.Ctx) error {
	var in tokenEmailRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	u, pair, err := ac.auth.VerifyEmail(c.UserContext(), in.Token, in.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sessionPayload(u, pair))
}

// POST /api/auth/login
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var in credentialsRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	u, pair, err := ac.auth.Login(c.UserContext(), in.Email, in.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sessionPayload(u, pair))
}

// POST /api/auth/token/refresh
func (ac *AuthController) HandleRefresh(c *fiber.Ctx) error {
	var in refreshRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	pair, err := ac.auth.Refresh(c.UserContext(), in.Refresh)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(pair)
}

// POST /api/auth/logout
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	var in refreshRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	if err := ac.auth.Logout(c.UserContext(), in.Refresh); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out."})
}

// GET /api/auth/profile
func (ac *AuthController) HandleProfile(c *fiber.Ctx) error {
	u, err := ac.auth.Profile(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(userPayload(u))
}

// POST /api/auth/email
func (ac *AuthController) HandleEmailLogin(c *fiber.Ctx) error {
	var in emailRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	ac.auth.RequestLoginLink(c.UserContext(), in.Email)
	return c.JSON(fiber.Map{"message": genericLinkMessage})
}

// POST /api/auth/email/verify
func (ac *AuthController) HandleEmailLoginVerify(c *fiber.Ctx) error {
	var in tokenEmailRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	u, pair, err := ac.auth.LoginWithToken(c.UserContext(), in.Token, in.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sessionPayload(u, pair))
}

// POST /api/auth/forgot-password
func (ac *AuthController) HandleForgotPassword(c *fiber.Ctx) error {
	var in emailRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	if err := ac.auth.RequestPasswordReset(c.UserContext(), in.Email, in.Captcha); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": genericLinkMessage})
}

// POST /api/auth/reset-password
func (ac *AuthController) HandleResetPassword(c *fiber.Ctx) error {
	var in resetRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	if err := ac.auth.ResetPassword(c.UserContext(), in.Token, in.Email, in.NewPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password has been reset."})
}
