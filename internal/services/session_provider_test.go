package services

import (
	"testing"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionProvider_Token(t *testing.T) {
	s := testSession(t, models.DiscountNone)

	token, err := s.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "user-1", s.Profile().ID)
	assert.False(t, s.IsExpired())
}

func TestSessionProvider_ExpiredToken(t *testing.T) {
	profile := models.UserProfile{ID: "user-1"}
	s := NewSessionProvider(jwt.NewService("test-secret"), testToken(t, "user-1", -time.Minute), profile, testLogger())

	_, err := s.Token()
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.True(t, s.IsExpired())

	select {
	case <-s.Expired():
	default:
		t.Fatal("expired channel should be closed")
	}
}

func TestSessionProvider_MarkExpiredAndRenew(t *testing.T) {
	s := testSession(t, models.DiscountNone)
	expired := s.Expired()

	s.MarkExpired()
	s.MarkExpired()

	<-expired
	_, err := s.Token()
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	s.Renew(testToken(t, "user-1", time.Hour), models.UserProfile{ID: "user-1", Category: models.DiscountRetired})

	_, err = s.Token()
	assert.NoError(t, err)
	assert.Equal(t, models.DiscountRetired, s.Profile().Category)
	select {
	case <-s.Expired():
		t.Fatal("renewed session should not be expired")
	default:
	}
}
