package authflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/app/repository"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/session"
	"github.com/ManuelReschke/ReportFox/internal/pkg/tokenstore"
)

var (
	ErrInvalidOrExpiredToken = apperrors.Validation("invalid or expired token")
	ErrAccountNotVerified    = apperrors.Forbidden("account not verified")
	ErrInvalidCredentials    = apperrors.Unauthenticated("invalid credentials")
	ErrInvalidSession        = apperrors.Unauthenticated("invalid or expired session")
	ErrAlreadyVerified       = apperrors.Conflict("account already verified")
	ErrEmailTaken            = apperrors.Conflict("email already registered")
)

const minPasswordLength = 8

// Notifier delivers the links that carry ephemeral tokens.
type Notifier interface {
	SendVerification(ctx context.Context, u *models.User, token string)
	SendLoginLink(ctx context.Context, u *models.User, token string)
	SendPasswordReset(ctx context.Context, u *models.User, token string)
}

// Captcha is consulted on register and forgot-password when configured.
type Captcha interface {
	Verify(ctx context.Context, token string) error
}

// TTLs are the lifetimes of the three token purposes.
type TTLs struct {
	Verify time.Duration
	Login  time.Duration
	Reset  time.Duration
}

// Service implements registration, verification, passwordless login,
// password reset and session handling on top of one token store.
type Service struct {
	users    repository.UserRepository
	tokens   tokenstore.Store
	sessions *session.Manager
	notifier Notifier
	captcha  Captcha
	ttl      TTLs
	validate *validator.Validate
}

func NewService(users repository.UserRepository, tokens tokenstore.Store, sessions *session.Manager, notifier Notifier, ttl TTLs) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		ttl:      ttl,
		validate: validator.New(),
	}
}

// WithCaptcha enables captcha checks. A nil captcha leaves them off.
func (s *Service) WithCaptcha(c Captcha) *Service {
	s.captcha = c
	return s
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=150"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Gender   string `json:"gender" validate:"omitempty,oneof=M F O"`
	Captcha  string `json:"h-captcha-response"`
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return apperrors.Validation("password must be at least 8 characters")
	}
	if strings.TrimSpace(pw) == "" {
		return apperrors.Validation("password must not be blank")
	}
	return nil
}

func (s *Service) checkCaptcha(ctx context.Context, token string) error {
	if s.captcha == nil {
		return nil
	}
	if err := s.captcha.Verify(ctx, token); err != nil {
		log.Warnf("[AuthFlow] Captcha rejected: %v", err)
		return apperrors.Validation("captcha verification failed")
	}
	return nil
}

// Register creates an inactive client account and mails a verification link.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid registration data", err)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.checkCaptcha(ctx, in.Captcha); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Internal("lookup user", err)
	}

	user, err := models.NewUser(in.Name, in.Email, in.Password)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid registration data", err)
	}
	profile := &models.Profile{Type: models.PROFILE_CLIENT, Phone: in.Phone, Gender: in.Gender}
	if err := s.users.CreateWithProfile(user, profile); err != nil {
		// lost a race against a concurrent registration of the same address
		if _, lookupErr := s.users.GetByEmail(in.Email); lookupErr == nil {
			return nil, ErrEmailTaken
		}
		return nil, apperrors.Internal("create user", err)
	}

	token, err := s.tokens.Issue(ctx, tokenstore.PurposeVerifyEmail, user.ID, s.ttl.Verify)
	if err != nil {
		return nil, apperrors.Internal("issue verification token", err)
	}
	s.notifier.SendVerification(ctx, user, token)

	log.Infof("[AuthFlow] Registered user %d", user.ID)
	return user, nil
}

// peekFor resolves email and token to the user the token was issued for.
// Any mismatch collapses into ErrInvalidOrExpiredToken.
func (s *Service) peekFor(ctx context.Context, purpose tokenstore.Purpose, token, email string) (*models.User, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(email) == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	user, err := s.users.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, apperrors.Internal("lookup user", err)
	}

	subject, err := s.tokens.Peek(ctx, purpose, token)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, apperrors.Internal("peek token", err)
	}
	if subject != user.ID {
		return nil, ErrInvalidOrExpiredToken
	}
	return user, nil
}

func (s *Service) consume(ctx context.Context, purpose tokenstore.Purpose, token string, user *models.User) error {
	err := s.tokens.Consume(ctx, purpose, token, user.ID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return apperrors.Internal("consume token", err)
	}
	return nil
}

func (s *Service) issuePair(user *models.User) (*session.Pair, error) {
	pair, err := s.sessions.IssuePair(user)
	if err != nil {
		return nil, apperrors.Internal("issue session", err)
	}
	if err := s.users.TouchLastLogin(user.ID); err != nil {
		log.Warnf("[AuthFlow] Failed to update last login for user %d: %v", user.ID, err)
	}
	return pair, nil
}

// VerifyEmail activates the account behind a verify-email token.
func (s *Service) VerifyEmail(ctx context.Context, token, email string) (*models.User, *session.Pair, error) {
	user, err := s.peekFor(ctx, tokenstore.PurposeVerifyEmail, token, email)
	if err != nil {
		return nil, nil, err
	}
	if user.IsActive() {
		return nil, nil, ErrAlreadyVerified
	}
	if err := s.consume(ctx, tokenstore.PurposeVerifyEmail, token, user); err != nil {
		return nil, nil, err
	}
	if err := s.users.Activate(user.ID); err != nil {
		return nil, nil, apperrors.Internal("activate user", err)
	}
	user.Status = models.STATUS_ACTIVE

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("[AuthFlow] Verified user %d", user.ID)
	return user, pair, nil
}

// activeUser returns the account for email only if it exists and is active.
func (s *Service) activeUser(email string) *models.User {
	user, err := s.users.GetByEmail(email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[AuthFlow] Lookup failed: %v", err)
		}
		return nil
	}
	if !user.IsActive() {
		return nil
	}
	return user
}

// RequestLoginLink mails a one-time login link. The outcome is never
// reported so callers cannot probe which addresses have accounts.
func (s *Service) RequestLoginLink(ctx context.Context, email string) {
	user := s.activeUser(email)
	if user == nil {
		return
	}
	token, err := s.tokens.Issue(ctx, tokenstore.PurposeLogin, user.ID, s.ttl.Login)
	if err != nil {
		log.Errorf("[AuthFlow] Failed to issue login token for user %d: %v", user.ID, err)
		return
	}
	s.notifier.SendLoginLink(ctx, user, token)
}

// LoginWithToken exchanges a login token for a session pair. An inactive
// account keeps its token so it can be used after verification.
func (s *Service) LoginWithToken(ctx context.Context, token, email string) (*models.User, *session.Pair, error) {
	user, err := s.peekFor(ctx, tokenstore.PurposeLogin, token, email)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive() {
		return nil, nil, ErrAccountNotVerified
	}
	if err := s.consume(ctx, tokenstore.PurposeLogin, token, user); err != nil {
		return nil, nil, err
	}
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// RequestPasswordReset mails a reset link for active accounts. Only a
// failed captcha is reported back.
func (s *Service) RequestPasswordReset(ctx context.Context, email, captcha string) error {
	if err := s.checkCaptcha(ctx, captcha); err != nil {
		return err
	}
	user := s.activeUser(email)
	if user == nil {
		return nil
	}
	token, err := s.tokens.Issue(ctx, tokenstore.PurposeResetPassword, user.ID, s.ttl.Reset)
	if err != nil {
		log.Errorf("[AuthFlow] Failed to issue reset token for user %d: %v", user.ID, err)
		return nil
	}
	s.notifier.SendPasswordReset(ctx, user, token)
	return nil
}

// ResetPassword replaces the password hash. The old password is not needed.
func (s *Service) ResetPassword(ctx context.Context, token, email, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.peekFor(ctx, tokenstore.PurposeResetPassword, token, email)
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return ErrAccountNotVerified
	}
	if err := s.consume(ctx, tokenstore.PurposeResetPassword, token, user); err != nil {
		return err
	}
	hash, err := models.HashPassword(newPassword)
	if err != nil {
		return apperrors.Internal("hash password", err)
	}
	if err := s.users.UpdatePassword(user.ID, hash); err != nil {
		return apperrors.Internal("update password", err)
	}
	log.Infof("[AuthFlow] Password reset for user %d", user.ID)
	return nil
}

// Login authenticates with email and password.
func (s *Service) Login(_ context.Context, email, password string) (*models.User, *session.Pair, error) {
	user, err := s.users.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, apperrors.Internal("lookup user", err)
	}
	if !user.CheckPassword(password) {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, nil, ErrAccountNotVerified
	}
	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a session: the presented refresh token is revoked and a
// new pair is issued.
func (s *Service) Refresh(ctx context.Context, refresh string) (*session.Pair, error) {
	claims, err := s.sessions.ParseRefresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrRevoked) {
			return nil, ErrInvalidSession
		}
		return nil, apperrors.Internal("parse refresh token", err)
	}
	user, err := s.users.GetByID(claims.UserID())
	if err != nil {
		return nil, ErrInvalidSession
	}
	if !user.IsActive() {
		return nil, ErrAccountNotVerified
	}
	if err := s.sessions.Revoke(ctx, refresh); err != nil {
		return nil, apperrors.Internal("revoke refresh token", err)
	}
	pair, err := s.sessions.IssuePair(user)
	if err != nil {
		return nil, apperrors.Internal("issue session", err)
	}
	return pair, nil
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refresh string) error {
	err := s.sessions.Revoke(ctx, refresh)
	if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrRevoked) {
		return ErrInvalidSession
	}
	if err != nil {
		return apperrors.Internal("revoke refresh token", err)
	}
	return nil
}

// Profile loads the user behind an authenticated session.
func (s *Service) Profile(_ context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("lookup user", err)
	}
	return user, nil
}
