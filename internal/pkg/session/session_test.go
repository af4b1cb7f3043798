package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/app/models"
)

func testUser() *models.User {
	return &models.User{
		ID:     12,
		Name:   "Jane",
		Email:  "jane@example.com",
		Status: models.STATUS_ACTIVE,
		Profile: &models.Profile{
			Type: models.PROFILE_CLIENT,
		},
	}
}

func TestIssueAndParsePair(t *testing.T) {
	m := NewManager("0123456789abcdef0123", time.Hour, 24*time.Hour, NewMemoryRevocations())

	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	claims, err := m.ParseAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID())
	assert.Equal(t, models.PROFILE_CLIENT, claims.ProfileType)
	assert.False(t, claims.Management)

	_, err = m.ParseAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token must not pass as access token")

	_, err = m.ParseRefresh(context.Background(), pair.Refresh)
	require.NoError(t, err)
}

func TestExpiredAccessRejected(t *testing.T) {
	m := NewManager("0123456789abcdef0123", time.Minute, time.Hour, NewMemoryRevocations())
	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ParseAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongSecretRejected(t *testing.T) {
	a := NewManager("0123456789abcdef0123", time.Hour, time.Hour, NewMemoryRevocations())
	b := NewManager("another-secret-value!", time.Hour, time.Hour, NewMemoryRevocations())

	pair, err := a.IssuePair(testUser())
	require.NoError(t, err)

	_, err = b.ParseAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeRefreshWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	m := NewManager("0123456789abcdef0123", time.Hour, 24*time.Hour, NewRedisRevocations(client))
	ctx := context.Background()

	pair, err := m.IssuePair(testUser())
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, pair.Refresh))

	_, err = m.ParseRefresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrRevoked)

	// access tokens stay valid until they expire on their own
	_, err = m.ParseAccess(pair.Access)
	assert.NoError(t, err)
}
