package controllers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/ReportFox/internal/pkg/watermark"
)

const unableToServe = "unable to serve report"

var (
	errNotPurchased   = apperrors.Forbidden("you have not purchased this report")
	unsafeHeaderChars = regexp.MustCompile(`[^A-Za-z0-9 ._()-]+`)
)

// Renderer produces a personalized copy of a report and returns its path.
type Renderer interface {
	Render(ctx context.Context, report *models.Report, viewer *models.User) (string, error)
}

// ViewCounter records deliveries for the periodic flush.
type ViewCounter interface {
	AddReportView(ctx context.Context, reportID uint) error
}

// ViewerController streams purchased reports. The canonical source is
// never sent; every response is a fresh temp copy that is removed after
// streaming.
type ViewerController struct {
	reports  repository.ReportRepository
	ledger   *entitlements.Ledger
	renderer Renderer
	views    ViewCounter
}

func NewViewerController(reports repository.ReportRepository, ledger *entitlements.Ledger, renderer Renderer, views ViewCounter) *ViewerController {
	return &ViewerController{reports: reports, ledger: ledger, renderer: renderer, views: views}
}

func attachmentTitle(title string) string {
	t := unsafeHeaderChars.ReplaceAllString(title, "_")
	if t == "" {
		t = "report"
	}
	return t
}

// GET /api/client/reports/:id/viewer
func (vc *ViewerController) HandleView(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	reportID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	// ledger first: without an entitlement the source is never touched
	owned, err := vc.ledger.HasAccess(c.UserContext(), uc.UserID, reportID)
	if err != nil {
		return respondError(c, apperrors.Internal("check entitlement", err))
	}
	if !owned {
		return respondError(c, errNotPurchased)
	}

	report, err := vc.reports.GetByID(reportID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return respondError(c, apperrors.NotFound("report not found"))
	}
	if err != nil {
		return respondError(c, apperrors.Internal("load report", err))
	}

	viewer := &models.User{ID: uc.UserID, Name: uc.Name, Email: uc.Email}
	out, err := vc.renderer.Render(c.UserContext(), report, viewer)
	if err != nil {
		if errors.Is(err, watermark.ErrSourceMissing) {
			log.Errorf("[Viewer] Delivery failed for report %d (user %d): source missing", report.ID, uc.UserID)
		} else {
			log.Errorf("[Viewer] Render failed for report %d (user %d): %v", report.ID, uc.UserID, err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": unableToServe})
	}

	body, err := os.ReadFile(out)
	os.Remove(out)
	if err != nil {
		log.Errorf("[Viewer] Delivery failed for report %d (user %d): %v", report.ID, uc.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": unableToServe})
	}

	if vc.views != nil {
		if err := vc.views.AddReportView(c.UserContext(), report.ID); err != nil {
			log.Warnf("[Viewer] Failed to count view of report %d: %v", report.ID, err)
		}
	}
	metrics.ReportViews.Inc()

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s.pdf"`, attachmentTitle(report.Title)))
	return c.Send(body)
}
