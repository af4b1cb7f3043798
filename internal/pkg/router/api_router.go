package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ReportFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ReportFox/internal/pkg/ratelimit"
)

// gatewayCallbacks bypass the coarse /api limiter: gateways deliver from a
// few addresses and must always get a success-shaped reply.
var gatewayCallbacks = map[string]struct{}{
	"/api/client/mpesa/callback":    {},
	"/api/client/paystack/callback": {},
	"/api/client/paystack/webhook":  {},
}

func isGatewayCallback(c *fiber.Ctx) bool {
	_, ok := gatewayCallbacks[strings.TrimSuffix(c.Path(), "/")]
	return ok
}

type ApiRouter struct {
	h Handlers
}

func (r ApiRouter) limit(rule ratelimit.Rule) fiber.Handler {
	if r.h.Limiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return ratelimit.Middleware(r.h.Limiter, rule)
}

func (r ApiRouter) InstallRouter(app *fiber.App) {
	h := r.h

	rateMax := h.APIRateMax
	if rateMax <= 0 {
		rateMax = 120
	}
	window := h.APIRateWindow
	if window <= 0 {
		window = time.Minute
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Next:       isGatewayCallback,
		Max:        rateMax,
		Expiration: window,
		Storage:    h.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// AUTH
	auth := api.Group("/auth")
	auth.Post("/register", r.limit(ratelimit.RuleRegister), h.Auth.HandleRegister)
	auth.Post("/verify-email", r.limit(ratelimit.RuleVerifyEmail), h.Auth.HandleVerifyEmail)
	auth.Post("/login", r.limit(ratelimit.RuleLogin), h.Auth.HandleLogin)
	auth.Post("/token/refresh", h.Auth.HandleRefresh)
	auth.Post("/logout", h.Auth.HandleLogout)
	auth.Get("/profile", middleware.RequireAuth, h.Auth.HandleProfile)
	auth.Post("/email", r.limit(ratelimit.RuleEmailLogin), h.Auth.HandleEmailLogin)
	auth.Post("/email/verify", r.limit(ratelimit.RuleEmailLoginVerify), h.Auth.HandleEmailLoginVerify)
	auth.Post("/forgot-password", r.limit(ratelimit.RuleForgotPassword), h.Auth.HandleForgotPassword)
	auth.Post("/reset-password", r.limit(ratelimit.RuleResetPassword), h.Auth.HandleResetPassword)
	if h.OAuth != nil {
		auth.Get("/oauth/:provider", h.OAuth.HandleBegin)
		auth.Get("/oauth/:provider/callback", h.OAuth.HandleCallback)
	}

	// GATEWAY CALLBACKS (unauthenticated, always acknowledged)
	client := api.Group("/client")
	client.Post("/mpesa/callback", h.Callbacks.HandleMpesa)
	client.Get("/paystack/callback", h.Callbacks.HandlePaystackCallback)
	client.Post("/paystack/webhook", h.Callbacks.HandlePaystackWebhook)

	// CLIENT AREA
	client.Get("/reports", middleware.RequireAuth, h.Client.HandleListReports)
	client.Get("/reports/:id", middleware.RequireAuth, h.Client.HandleGetReport)
	client.Get("/reports/:id/viewer", middleware.RequireClient, middleware.ViewerHeaders, h.Viewer.HandleView)
	client.Post("/orders", middleware.RequireClient, r.limit(ratelimit.RuleCreateOrder), h.Client.HandleCreateOrder)
	client.Get("/orders", middleware.RequireClient, h.Client.HandleListOrders)
	client.Get("/orders/:id", middleware.RequireClient, h.Client.HandleGetOrder)
	client.Post("/orders/:id/pay", middleware.RequireClient, r.limit(ratelimit.RulePayment), h.Client.HandlePay)
	client.Get("/purchases", middleware.RequireClient, h.Client.HandlePurchases)
	client.Get("/dashboard", middleware.RequireClient, h.Client.HandleDashboard)

	// MANAGEMENT
	admin := api.Group("/admin", middleware.RequireManagement)
	admin.Post("/reports", h.Admin.HandleCreateReport)
	admin.Patch("/reports/:id", h.Admin.HandleUpdateReport)
	admin.Get("/orders", h.Admin.HandleListOrders)
	admin.Get("/revenue", h.Admin.HandleRevenue)
}

func NewApiRouter(h Handlers) *ApiRouter {
	return &ApiRouter{h: h}
}
