package oauth

import (
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/redis/go-redis/v9"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/ReportFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

// Enabled reports whether a Google client is configured.
func Enabled(cfg config.OAuthConfig) bool {
	return cfg.GoogleKey != "" && cfg.GoogleSecret != ""
}

// Setup registers the Google provider and points goth_fiber's state store at
// Redis. Callbacks land on {baseURL}/api/auth/oauth/google/callback.
// It is safe to call multiple times; providers will just be re-registered.
func Setup(cfg config.OAuthConfig, baseURL string, rdb *redis.Client, secureCookies bool) {
	if !Enabled(cfg) {
		log.Info("[OAuth] Google credentials not configured, social login disabled")
		return
	}

	goth.UseProviders(
		google.New(
			cfg.GoogleKey,
			cfg.GoogleSecret,
			baseURL+"/api/auth/oauth/google/callback",
			"email", "profile",
		),
	)

	gothfiber.SessionStore = session.New(session.Config{
		Storage:        cache.NewFiberStorage(rdb, cache.DatabaseOAuthState),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   secureCookies,
		Expiration:     15 * time.Minute,
	})
}
