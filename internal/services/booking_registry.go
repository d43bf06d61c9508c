package services

import (
	"context"
	"sync"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// RegistryConfig configures every per-user booking session
type RegistryConfig struct {
	Orchestrator OrchestratorConfig
	Reconciler   ReconcilerConfig
}

// BookingSession bundles the collaborators of one user's booking flow
type BookingSession struct {
	UserID       string
	Session      *SessionProvider
	Orchestrator *BookingOrchestrator
	Reconciler   *ResumptionReconciler
	Navigation   *NavigationQueue
	Payments     *PaymentSessionService

	cancel   context.CancelFunc
	lastSeen time.Time // guarded by the registry lock
}

// BookingRegistry keeps one booking session per authenticated user
type BookingRegistry struct {
	mu       sync.Mutex
	sessions map[string]*BookingSession

	api     BookingAPI
	jwt     *jwt.Service
	journal PaymentJournal
	parser  *DeepLinkParser
	config  RegistryConfig
	logger  *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBookingRegistry creates a registry. Reconciler goroutines live until
// ctx is cancelled or Close is called. journal may be nil.
func NewBookingRegistry(
	ctx context.Context,
	api BookingAPI,
	jwtService *jwt.Service,
	journal PaymentJournal,
	parser *DeepLinkParser,
	config RegistryConfig,
	logger *logrus.Logger,
) *BookingRegistry {
	ctx, cancel := context.WithCancel(ctx)
	return &BookingRegistry{
		sessions: make(map[string]*BookingSession),
		api:      api,
		jwt:      jwtService,
		journal:  journal,
		parser:   parser,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Acquire returns the user's booking session, creating it on first use.
// The bearer credential is renewed on every call.
func (r *BookingRegistry) Acquire(token string, profile models.UserProfile) *BookingSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[profile.ID]; ok {
		s.Session.Renew(token, profile)
		s.lastSeen = time.Now()
		return s
	}

	s := r.newSession(token, profile)
	s.lastSeen = time.Now()
	r.sessions[profile.ID] = s

	r.logger.WithField("user_id", profile.ID).Debug("Booking session created")
	return s
}

// Get returns an existing booking session
func (r *BookingRegistry) Get(userID string) (*BookingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Release stops and forgets the user's booking session
func (r *BookingRegistry) Release(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		s.cancel()
	}
}

// Len returns the number of live booking sessions
func (r *BookingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepIdle releases sessions last used before cutoff and returns how many
// were released. Sessions awaiting a payment outcome are kept.
func (r *BookingRegistry) SweepIdle(cutoff time.Time) int {
	r.mu.Lock()
	var idle []*BookingSession
	for id, s := range r.sessions {
		if !s.lastSeen.Before(cutoff) || s.Reconciler.State() == ReconcilerAwaitingPayment {
			continue
		}
		idle = append(idle, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.cancel()
	}
	return len(idle)
}

// Close stops every booking session
func (r *BookingRegistry) Close() {
	r.mu.Lock()
	r.sessions = make(map[string]*BookingSession)
	r.mu.Unlock()
	r.cancel()
}

func (r *BookingRegistry) newSession(token string, profile models.UserProfile) *BookingSession {
	session := NewSessionProvider(r.jwt, token, profile, r.logger)
	nav := NewNavigationQueue()
	orchestrator := NewBookingOrchestrator(r.api, session, r.config.Orchestrator, r.logger)
	reconciler := NewResumptionReconciler(
		r.config.Reconciler,
		orchestrator,
		r.api,
		session,
		nav,
		r.journal,
		r.parser,
		r.logger,
	)
	payments := NewPaymentSessionService(r.api, nav, reconciler, r.logger)
	orchestrator.SetPaymentStarter(payments)

	ctx, cancel := context.WithCancel(r.ctx)
	go reconciler.Run(ctx)

	return &BookingSession{
		UserID:       profile.ID,
		Session:      session,
		Orchestrator: orchestrator,
		Reconciler:   reconciler,
		Navigation:   nav,
		Payments:     payments,
		cancel:       cancel,
	}
}
