package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ReportFox/internal/pkg/middleware"
)

type HttpRouter struct {
	h Handlers
}

func (r HttpRouter) InstallRouter(app *fiber.App) {
	metrics.Init()

	app.Use(middleware.SecurityHeaders)
	if r.h.AllowedOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: r.h.AllowedOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,POST,PATCH,OPTIONS",
			MaxAge:       600,
		}))
	}
	app.Use(metrics.Middleware())
	// Apply UserContext middleware globally; guards only read what it stores
	app.Use(middleware.UserContextMiddleware(r.h.Sessions))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	metricsHandler := adaptor.HTTPHandler(metrics.Handler())
	if r.h.MetricsUser != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{r.h.MetricsUser: r.h.MetricsPass},
		}), metricsHandler)
	} else {
		app.Get("/metrics", metricsHandler)
	}
}

func NewHttpRouter(h Handlers) *HttpRouter {
	return &HttpRouter{h: h}
}
