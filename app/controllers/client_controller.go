package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/payment"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

const recentPurchases = 5

// ClientController serves the catalogue, orders and purchase history of
// the /api/client area.
type ClientController struct {
	repos    *repository.Repositories
	payments *payment.Service
	ledger   *entitlements.Ledger
}

func NewClientController(repos *repository.Repositories, payments *payment.Service, ledger *entitlements.Ledger) *ClientController {
	return &ClientController{repos: repos, payments: payments, ledger: ledger}
}

type createOrderRequest struct {
	ReportIDs []uint `json:"report_ids"`
}

// GET /api/client/reports?category=
func (cc *ClientController) HandleListReports(c *fiber.Ctx) error {
	reports, err := cc.repos.Report.ListActive(strings.TrimSpace(c.Query("category")))
	if err != nil {
		return respondError(c, apperrors.Internal("list reports", err))
	}
	return c.JSON(fiber.Map{"results": reports, "count": len(reports)})
}

// GET /api/client/reports/:id
func (cc *ClientController) HandleGetReport(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	report, err := cc.repos.Report.GetActiveByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, apperrors.NotFound("report not found"))
	}
	if err != nil {
		return respondError(c, apperrors.Internal("load report", err))
	}

	owned, err := cc.ledger.HasAccess(c.UserContext(), usercontext.GetUserID(c), report.ID)
	if err != nil {
		return respondError(c, apperrors.Internal("check entitlement", err))
	}
	return c.JSON(fiber.Map{
		"id":            report.ID,
		"title":         report.Title,
		"description":   report.Description,
		"category":      report.Category,
		"price_cents":   report.PriceCents,
		"price":         models.FormatCents(report.PriceCents),
		"view_count":    report.ViewCount,
		"created_at":    report.CreatedAt,
		"has_purchased": owned,
	})
}

// POST /api/client/orders
func (cc *ClientController) HandleCreateOrder(c *fiber.Ctx) error {
	var in createOrderRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	client, err := currentUser(c, cc.repos.User)
	if err != nil {
		return respondError(c, err)
	}
	order, err := cc.payments.CreateOrder(c.UserContext(), client, in.ReportIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total_cents":  order.TotalCents,
		"total_price":  models.FormatCents(order.TotalCents),
		"status":       order.Status,
		"items":        order.Lines,
	})
}

// GET /api/client/orders
func (cc *ClientController) HandleListOrders(c *fiber.Ctx) error {
	orders, err := cc.repos.Order.ListByClient(usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, apperrors.Internal("list orders", err))
	}
	return c.JSON(fiber.Map{"results": orders, "count": len(orders)})
}

// GET /api/client/orders/:id
// Clients poll this after a mobile money push until the order is paid.
func (cc *ClientController) HandleGetOrder(c *fiber.Ctx) error {
	orderID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, payment.ErrOrderNotFound)
	}
	order, err := cc.repos.Order.GetForClient(orderID, usercontext.GetUserID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, payment.ErrOrderNotFound)
	}
	if err != nil {
		return respondError(c, apperrors.Internal("load order", err))
	}

	out := fiber.Map{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"total_cents":  order.TotalCents,
		"total_price":  models.FormatCents(order.TotalCents),
		"items":        order.Lines,
		"created_at":   order.CreatedAt,
		"payment":      nil,
	}
	txn, err := cc.repos.Order.GetTransaction(order.ID)
	switch {
	case err == nil:
		out["payment"] = txn
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return respondError(c, apperrors.Internal("load transaction", err))
	}
	return c.JSON(out)
}

// POST /api/client/orders/:id/pay
func (cc *ClientController) HandlePay(c *fiber.Ctx) error {
	orderID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, payment.ErrOrderNotFound)
	}
	var in payment.PaymentRequest
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	client, err := currentUser(c, cc.repos.User)
	if err != nil {
		return respondError(c, err)
	}
	res, err := cc.payments.InitiatePayment(c.UserContext(), client, orderID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// GET /api/client/purchases
func (cc *ClientController) HandlePurchases(c *fiber.Ctx) error {
	records, err := cc.ledger.ListForClient(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, apperrors.Internal("list purchases", err))
	}
	return c.JSON(fiber.Map{"results": records, "count": len(records)})
}

// GET /api/client/dashboard
func (cc *ClientController) HandleDashboard(c *fiber.Ctx) error {
	clientID := usercontext.GetUserID(c)
	stats, err := cc.repos.Order.ClientStats(clientID)
	if err != nil {
		return respondError(c, apperrors.Internal("client stats", err))
	}
	records, err := cc.ledger.ListForClient(c.UserContext(), clientID)
	if err != nil {
		return respondError(c, apperrors.Internal("list purchases", err))
	}
	if len(records) > recentPurchases {
		records = records[:recentPurchases]
	}
	return c.JSON(fiber.Map{
		"total_reports_purchased": stats.TotalPurchased,
		"total_spent_cents":       stats.TotalSpent,
		"total_amount_spent":      models.FormatCents(stats.TotalSpent),
		"recent_purchases":        records,
	})
}
