package authflow

import (
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
)

// CreateManagementUser provisions an active Management account. Management
// users never self-register; this is run by an operator.
func CreateManagementUser(users repository.UserRepository, name, email, password string) (*models.User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if _, err := users.GetByEmail(models.NormalizeEmail(email)); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal("lookup user", err)
	}

	user, err := models.NewUser(name, email, password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid user data", err)
	}
	user.Status = models.STATUS_ACTIVE
	if err := users.CreateWithProfile(user, &models.Profile{Type: models.PROFILE_MANAGEMENT}); err != nil {
		return nil, apperrors.Internal("create user", err)
	}
	log.Infof("[AuthFlow] Management user %d created", user.ID)
	return user, nil
}
