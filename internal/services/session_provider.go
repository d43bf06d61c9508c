package services

import (
	"sync"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// SessionProvider holds the bearer credential of one user and signals when
// the remote API stopped accepting it
type SessionProvider struct {
	mu      sync.RWMutex
	jwt     *jwt.Service
	token   string
	profile models.UserProfile
	expired chan struct{}
	closed  bool
	logger  *logrus.Logger
}

// NewSessionProvider creates a provider for an already authenticated user
func NewSessionProvider(jwtService *jwt.Service, token string, profile models.UserProfile, logger *logrus.Logger) *SessionProvider {
	return &SessionProvider{
		jwt:     jwtService,
		token:   token,
		profile: profile,
		expired: make(chan struct{}),
		logger:  logger,
	}
}

// Token returns the bearer credential or ErrSessionExpired
func (s *SessionProvider) Token() (string, error) {
	s.mu.RLock()
	token, closed := s.token, s.closed
	s.mu.RUnlock()

	if closed {
		return "", models.ErrSessionExpired
	}
	if token == "" || s.jwt.IsTokenExpired(token) {
		s.MarkExpired()
		return "", models.ErrSessionExpired
	}
	return token, nil
}

// Renew installs a fresh credential after the user authenticated again
func (s *SessionProvider) Renew(token string, profile models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.profile = profile
	if s.closed {
		s.expired = make(chan struct{})
		s.closed = false
	}
}

// Profile returns the user the session belongs to
func (s *SessionProvider) Profile() models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// MarkExpired records that the credential is no longer valid
func (s *SessionProvider) MarkExpired() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.expired)
	userID := s.profile.ID
	s.mu.Unlock()

	s.logger.WithField("user_id", userID).Info("Session expired, re-authentication required")
}

// Expired is closed once the current credential expired
func (s *SessionProvider) Expired() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expired
}

// IsExpired reports whether the current credential expired
func (s *SessionProvider) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
