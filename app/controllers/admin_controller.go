package controllers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/storage"
)

const (
	maxReportUpload    = 100 << 20
	defaultRevenueSpan = 12
)

var (
	pdfMagic       = []byte("%PDF-")
	unsafeFileName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// AdminController handles management endpoints using repository pattern
type AdminController struct {
	repos    *repository.Repositories
	store    storage.Store
	validate *validator.Validate
	now      func() time.Time
}

// NewAdminController creates a new admin controller with repository dependencies
func NewAdminController(repos *repository.Repositories, store storage.Store) *AdminController {
	return &AdminController{
		repos:    repos,
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
}

type reportPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	PriceCents  *int64  `json:"price_cents"`
	Active      *bool   `json:"active"`
}

func sourceKey(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.Trim(unsafeFileName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "report"
	}
	return "reports/" + strings.ToLower(ulid.Make().String()) + "_" + base + ".pdf"
}

func (ac *AdminController) validateReport(r *models.Report) error {
	if err := ac.validate.Struct(r); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "invalid report data", err)
	}
	return nil
}

// POST /api/admin/reports (multipart: file, title, description, category, price_cents, active)
func (ac *AdminController) HandleCreateReport(c *fiber.Ctx) error {
	price, err := strconv.ParseInt(strings.TrimSpace(c.FormValue("price_cents", "0")), 10, 64)
	if err != nil {
		return respondError(c, apperrors.Validation("price_cents must be an integer amount in minor units"))
	}
	active := true
	if raw := strings.TrimSpace(c.FormValue("active")); raw != "" {
		if active, err = strconv.ParseBool(raw); err != nil {
			return respondError(c, apperrors.Validation("active must be a boolean"))
		}
	}
	report := &models.Report{
		Title:       strings.TrimSpace(c.FormValue("title")),
		Description: strings.TrimSpace(c.FormValue("description")),
		Category:    strings.TrimSpace(c.FormValue("category")),
		PriceCents:  price,
		Active:      active,
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, apperrors.Validation("a PDF file is required"))
	}
	if fh.Size <= 0 || fh.Size > maxReportUpload {
		return respondError(c, apperrors.Validation("file must be between 1 byte and 100 MB"))
	}
	report.SourceRef = sourceKey(fh.Filename)
	if err := ac.validateReport(report); err != nil {
		return respondError(c, err)
	}

	f, err := fh.Open()
	if err != nil {
		return respondError(c, apperrors.Internal("open upload", err))
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return respondError(c, apperrors.Validation("file is not a PDF document"))
	}

	ctx := c.UserContext()
	body := io.MultiReader(bytes.NewReader(head), f)
	if err := ac.store.Put(ctx, report.SourceRef, body, fh.Size); err != nil {
		return respondError(c, apperrors.Internal("store report source", err))
	}
	if err := ac.repos.Report.Create(report); err != nil {
		ac.discardSource(report.SourceRef)
		return respondError(c, apperrors.Internal("create report", err))
	}

	log.Infof("[Admin] Report %d uploaded (%d bytes)", report.ID, fh.Size)
	return c.Status(fiber.StatusCreated).JSON(report)
}

func (ac *AdminController) discardSource(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ac.store.Delete(ctx, key); err != nil {
		log.Warnf("[Admin] Failed to remove orphaned source %s: %v", key, err)
	}
}

// PATCH /api/admin/reports/:id
func (ac *AdminController) HandleUpdateReport(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in reportPatch
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}

	report, err := ac.repos.Report.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, apperrors.NotFound("report not found"))
	}
	if err != nil {
		return respondError(c, apperrors.Internal("load report", err))
	}

	if in.Title != nil {
		report.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		report.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		report.Category = strings.TrimSpace(*in.Category)
	}
	if in.PriceCents != nil {
		report.PriceCents = *in.PriceCents
	}
	if in.Active != nil {
		report.Active = *in.Active
	}
	if err := ac.validateReport(report); err != nil {
		return respondError(c, err)
	}
	if err := ac.repos.Report.Update(report); err != nil {
		return respondError(c, apperrors.Internal("update report", err))
	}
	return c.JSON(report)
}

// GET /api/admin/orders?status=
func (ac *AdminController) HandleListOrders(c *fiber.Ctx) error {
	status := strings.TrimSpace(c.Query("status"))
	switch status {
	case "", models.ORDER_PENDING, models.ORDER_PAID, models.ORDER_CANCELLED:
	default:
		return respondError(c, apperrors.Validation("status must be one of pending, paid, cancelled"))
	}
	orders, err := ac.repos.Order.ListByStatus(status)
	if err != nil {
		return respondError(c, apperrors.Internal("list orders", err))
	}
	return c.JSON(fiber.Map{"results": orders, "count": len(orders)})
}

// GET /api/admin/revenue?months=
func (ac *AdminController) HandleRevenue(c *fiber.Ctx) error {
	months := c.QueryInt("months", defaultRevenueSpan)
	if months < 1 || months > 120 {
		return respondError(c, apperrors.Validation("months must be between 1 and 120"))
	}
	now := ac.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	txns, err := ac.repos.Order.PaidTransactionsSince(since)
	if err != nil {
		return respondError(c, apperrors.Internal("load transactions", err))
	}
	rows := repository.GroupRevenueByMonth(txns)

	var total int64
	for _, r := range rows {
		total += r.AmountCents
	}
	return c.JSON(fiber.Map{
		"since":       since.Format("2006-01-02"),
		"months":      rows,
		"total_cents": total,
		"total":       models.FormatCents(total),
	})
}
