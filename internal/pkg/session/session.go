package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ReportFox/app/models"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid or expired session token")
	ErrRevoked      = errors.New("session token has been revoked")
)

// Claims is the JWT payload of both halves of a session pair.
type Claims struct {
	TokenType   string `json:"typ"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
	ProfileType string `json:"profile_type,omitempty"`
	Management  bool   `json:"mgmt,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() uint {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// Pair is the access/refresh credential pair handed to clients.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Manager issues, parses and revokes HS256 session pairs.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    Revocations
	now        func() time.Time
}

func NewManager(secret string, accessTTL, refreshTTL time.Duration, revoked Revocations) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		revoked:    revoked,
		now:        time.Now,
	}
}

// IssuePair mints a fresh access and refresh token for u.
func (m *Manager) IssuePair(u *models.User) (*Pair, error) {
	access, err := m.sign(u, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(u, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) sign(u *models.User, typ string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		TokenType:  typ,
		Email:      u.Email,
		Name:       u.Name,
		Management: u.IsManagement(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if u.Profile != nil {
		claims.ProfileType = u.Profile.Type
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) parse(raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.UserID() == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseAccess validates an access token.
func (m *Manager) ParseAccess(raw string) (*Claims, error) {
	return m.parse(raw, TokenTypeAccess)
}

// ParseRefresh validates a refresh token and checks the revocation list.
func (m *Manager) ParseRefresh(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke blacklists a refresh token until it would have expired anyway.
func (m *Manager) Revoke(ctx context.Context, rawRefresh string) error {
	claims, err := m.ParseRefresh(ctx, rawRefresh)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.revoked.Revoke(ctx, claims.ID, ttl)
}
