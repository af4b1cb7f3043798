package ratelimit

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

// Rule names a limit. The name is part of the counter key, so every rule
// counts separately.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	RuleRegister         = Rule{Name: "register", Limit: 10, Window: time.Hour}
	RuleVerifyEmail      = Rule{Name: "verify-email", Limit: 50, Window: time.Hour}
	RuleLogin            = Rule{Name: "login", Limit: 50, Window: time.Hour}
	RuleEmailLogin       = Rule{Name: "email-login", Limit: 10, Window: time.Hour}
	RuleEmailLoginVerify = Rule{Name: "email-login-verify", Limit: 50, Window: time.Hour}
	RuleForgotPassword   = Rule{Name: "forgot", Limit: 10, Window: time.Hour}
	RuleResetPassword    = Rule{Name: "reset", Limit: 10, Window: time.Hour}
	RulePayment          = Rule{Name: "payment", Limit: 20, Window: time.Hour}
	RuleCreateOrder      = Rule{Name: "create-order", Limit: 30, Window: time.Hour}
)

// Middleware enforces rule per client IP. Backend failures let the request
// through.
func Middleware(l *Limiter, rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := l.Allow(c.UserContext(), rule.Name+":"+c.IP(), rule.Limit, rule.Window)
		if err != nil {
			log.Warnf("[RateLimit] Rule %s: backend error, allowing request: %v", rule.Name, err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			metrics.RateLimited.WithLabelValues(rule.Name).Inc()
			log.Warnf("[RateLimit] Rule %s exceeded by %s", rule.Name, c.IP())
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
