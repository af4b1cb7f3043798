package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/usercontext"
)

var errBadBody = apperrors.Validation("request body is not valid JSON")

// respondError maps an error onto the HTTP taxonomy. Unexpected errors are
// logged with request context and answered with a generic message.
func respondError(c *fiber.Ctx, err error) error {
	kind := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindInternal:
		log.Errorf("[API] %s %s (user %d): %v", c.Method(), c.Path(), usercontext.GetUserID(c), err)
	case apperrors.KindUpstreamGateway:
		log.Warnf("[API] %s %s: upstream failure: %v", c.Method(), c.Path(), err)
	}
	return c.Status(kind.HTTPStatus()).JSON(fiber.Map{"error": apperrors.PublicMessage(err)})
}

// bindJSON parses the request body into out. An empty body leaves out untouched.
func bindJSON(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return errBadBody
	}
	return nil
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.NotFound("not found")
	}
	return uint(id), nil
}

// currentUser loads the authenticated caller with its profile.
func currentUser(c *fiber.Ctx, users repository.UserRepository) (*models.User, error) {
	id := usercontext.GetUserID(c)
	if id == 0 {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	u, err := users.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Unauthenticated("authentication required")
	}
	if err != nil {
		return nil, apperrors.Internal("load user", err)
	}
	return u, nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
