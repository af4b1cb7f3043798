package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/app/controllers"
	"github.com/ManuelReschke/ReportFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
)

// Router installs a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Handlers is everything the routers need, built once in main.
type Handlers struct {
	Auth      *controllers.AuthController
	OAuth     *controllers.OAuthController
	Client    *controllers.ClientController
	Viewer    *controllers.ViewerController
	Callbacks *controllers.CallbackController
	Admin     *controllers.AdminController

	Sessions *session.Manager
	Limiter  *ratelimit.Limiter

	// LimiterStorage backs the coarse /api limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	APIRateMax     int
	APIRateWindow  time.Duration

	MetricsUser string
	MetricsPass string

	// AllowedOrigins enables CORS for the browser frontend (comma separated).
	AllowedOrigins string
}

func InstallRouter(app *fiber.App, h Handlers) {
	// HttpRouter first: it installs the global middleware the API
	// guards rely on (user context from the bearer token).
	setup(app, NewHttpRouter(h), NewApiRouter(h))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
