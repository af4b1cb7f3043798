package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReportFox/internal/pkg/payment"
)

// CallbackController receives gateway notifications. Gateways retry on any
// non-success reply, so every handler answers success-shaped and leaves
// failures to the logs.
type CallbackController struct {
	payments *payment.Service
	deadline time.Duration
}

func NewCallbackController(payments *payment.Service, deadline time.Duration) *CallbackController {
	if deadline <= 0 {
		deadline = 15 * time.Second
	}
	return &CallbackController{payments: payments, deadline: deadline}
}

// processing is detached from the request so a gateway hanging up does not
// abort a confirmation half way
func (cb *CallbackController) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cb.deadline)
}

// POST /api/client/mpesa/callback
func (cb *CallbackController) HandleMpesa(c *fiber.Ctx) error {
	ctx, cancel := cb.ctx()
	defer cancel()

	payload := append([]byte(nil), c.Body()...)
	cb.payments.HandleMpesaCallback(ctx, payload)
	return c.JSON(fiber.Map{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// GET /api/client/paystack/callback?reference=
func (cb *CallbackController) HandlePaystackCallback(c *fiber.Ctx) error {
	ctx, cancel := cb.ctx()
	defer cancel()

	ref := strings.TrimSpace(c.Query("reference"))
	if ref == "" {
		ref = strings.TrimSpace(c.Query("trxref"))
	}
	cb.payments.HandleRedirectCallback(ctx, ref)
	return c.JSON(fiber.Map{"status": "ok"})
}

// POST /api/client/paystack/webhook
func (cb *CallbackController) HandlePaystackWebhook(c *fiber.Ctx) error {
	ctx, cancel := cb.ctx()
	defer cancel()

	payload := append([]byte(nil), c.Body()...)
	cb.payments.HandlePaystackWebhook(ctx, payload, c.Get("x-paystack-signature"))
	return c.JSON(fiber.Map{"status": "ok"})
}
