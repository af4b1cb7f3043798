package authflow

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
)

// ExternalIdentity is what an OAuth provider tells us about a user.
type ExternalIdentity struct {
	Provider string
	Email    string
	Name     string
}

// LoginWithProvider signs in the account matching a provider-verified email.
// Unknown addresses get a new active Client account; a pending account is
// activated since the provider has already proven ownership of the address.
func (s *Service) LoginWithProvider(_ context.Context, id ExternalIdentity) (*models.User, *session.Pair, error) {
	email := models.NormalizeEmail(id.Email)
	if email == "" {
		return nil, nil, apperrors.Validation("provider did not return an email address")
	}

	user, err := s.users.GetByEmail(email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		name := strings.TrimSpace(id.Name)
		if len(name) < 2 {
			name = strings.SplitN(email, "@", 2)[0]
		}
		// the placeholder password is never disclosed
		user, err = models.NewUser(name, email, uuid.NewString())
		if err != nil {
			return nil, nil, apperrors.Wrap(apperrors.KindValidation, "invalid provider profile", err)
		}
		user.Status = models.STATUS_ACTIVE
		if err := s.users.CreateWithProfile(user, &models.Profile{Type: models.PROFILE_CLIENT}); err != nil {
			return nil, nil, apperrors.Internal("create user", err)
		}
		log.Infof("[AuthFlow] Created user %d via %s", user.ID, id.Provider)
	case err != nil:
		return nil, nil, apperrors.Internal("lookup user", err)
	case !user.IsActive():
		if err := s.users.Activate(user.ID); err != nil {
			return nil, nil, apperrors.Internal("activate user", err)
		}
		user.Status = models.STATUS_ACTIVE
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}
