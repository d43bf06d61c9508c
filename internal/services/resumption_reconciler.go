package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReconcilerState is where the reconciler stands with respect to the
// external payment surface
type ReconcilerState string

const (
	ReconcilerIdle                 ReconcilerState = "idle"
	ReconcilerAwaitingPayment      ReconcilerState = "awaiting_payment"
	ReconcilerResumedViaForeground ReconcilerState = "resumed_via_foreground"
	ReconcilerResumedViaDeepLink   ReconcilerState = "resumed_via_deeplink"
)

// BookingResetter is the part of the booking flow resumption acts on
type BookingResetter interface {
	HasProgressed() bool
	Reset()
	ReloadSeats(ctx context.Context) error
}

// PurchaseFinalizer confirms or cancels a purchase server-side
type PurchaseFinalizer interface {
	ConfirmPurchase(ctx context.Context, token, sessionID string) error
	CancelPurchase(ctx context.Context, token, sessionID string) error
}

// TokenSource supplies the bearer credential
type TokenSource interface {
	Token() (string, error)
}

// PaymentJournal records payment attempts; failures never block the flow
type PaymentJournal interface {
	Create(ctx context.Context, attempt *models.PaymentAttempt) error
	MarkResolved(ctx context.Context, id uuid.UUID, status models.PaymentAttemptStatus, via models.PaymentResolutionSource) error
}

// ReconcilerConfig holds resumption timings
type ReconcilerConfig struct {
	// ForegroundGrace is how long a deep link can still claim an attempt
	// after the app returned to the foreground
	ForegroundGrace time.Duration
	// NavigationDelay lets the host navigation settle before re-navigating
	NavigationDelay time.Duration
	// CallTimeout bounds best-effort confirm/cancel calls
	CallTimeout time.Duration
}

// DeepLinkOutcome is what handling a deep link did
type DeepLinkOutcome struct {
	Handled   bool           `json:"handled"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Outcome   PaymentOutcome `json:"outcome,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Route     models.Route   `json:"route,omitempty"`
	AttemptID *uuid.UUID     `json:"attempt_id,omitempty"`
	// ServerCallFailed is informational; navigation never depends on it
	ServerCallFailed bool `json:"server_call_failed,omitempty"`
}

var (
	errMissingSessionID  = errors.New("payment link carries no session id")
	errReconcilerStopped = errors.New("resumption reconciler stopped")
)

type paymentPendingEvent struct {
	attempt *models.PaymentAttempt
}

type foregroundEvent struct{}

type foregroundSettledEvent struct {
	seq       uint64
	attemptID uuid.UUID
}

type abandonNavigationEvent struct {
	seq uint64
}

type deepLinkEvent struct {
	link  PaymentLink
	reply chan DeepLinkOutcome
}

// ResumptionReconciler decides what happens when control comes back from
// the external payment surface. Foreground resumptions and deep links race,
// so both are funnelled through one ordered event queue consumed by Run.
// A foreground resumption during a payment only commits after a grace
// window, and is dropped if a deep link claimed the attempt meanwhile.
type ResumptionReconciler struct {
	cfg       ReconcilerConfig
	booking   BookingResetter
	purchases PurchaseFinalizer
	tokens    TokenSource
	nav       Navigator
	journal   PaymentJournal
	parser    *DeepLinkParser
	logger    *logrus.Logger

	events chan interface{}
	done   chan struct{}
	runCtx context.Context

	// owned by the Run goroutine
	claimed       bool
	foregroundSeq uint64
	lastSessionID string

	mu      sync.RWMutex
	state   ReconcilerState
	attempt *models.PaymentAttempt
}

// NewResumptionReconciler creates a reconciler. journal may be nil.
func NewResumptionReconciler(
	cfg ReconcilerConfig,
	booking BookingResetter,
	purchases PurchaseFinalizer,
	tokens TokenSource,
	nav Navigator,
	journal PaymentJournal,
	parser *DeepLinkParser,
	logger *logrus.Logger,
) *ResumptionReconciler {
	if journal == nil {
		journal = noopJournal{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &ResumptionReconciler{
		cfg:       cfg,
		booking:   booking,
		purchases: purchases,
		tokens:    tokens,
		nav:       nav,
		journal:   journal,
		parser:    parser,
		logger:    logger,
		events:    make(chan interface{}, 16),
		done:      make(chan struct{}),
		runCtx:    context.Background(),
		state:     ReconcilerIdle,
	}
}

// Run consumes events until ctx is cancelled
func (r *ResumptionReconciler) Run(ctx context.Context) {
	r.runCtx = ctx
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			switch e := ev.(type) {
			case paymentPendingEvent:
				r.onPaymentPending(e.attempt)
			case foregroundEvent:
				r.onForeground()
			case foregroundSettledEvent:
				r.onForegroundSettled(e)
			case abandonNavigationEvent:
				// a deep link or a new attempt since abandonment owns navigation now
				if e.seq == r.foregroundSeq {
					r.nav.Reset(models.RouteTripSelection)
				}
			case deepLinkEvent:
				e.reply <- r.onDeepLink(e.link)
			}
		}
	}
}

// PaymentPending records that control was handed to the payment surface
func (r *ResumptionReconciler) PaymentPending(attempt *models.PaymentAttempt) {
	r.post(paymentPendingEvent{attempt: attempt})
}

// Foreground reports that the host app regained focus
func (r *ResumptionReconciler) Foreground() {
	r.post(foregroundEvent{})
}

// HandleDeepLink processes an inbound link and waits for the outcome.
// Links that are not payment return links are ignored.
func (r *ResumptionReconciler) HandleDeepLink(ctx context.Context, raw string) (DeepLinkOutcome, error) {
	link, ok := r.parser.Parse(raw)
	if !ok {
		r.logger.WithField("link", raw).Debug("Ignoring non-payment deep link")
		return DeepLinkOutcome{}, nil
	}
	if link.Recovered {
		r.logger.WithField("link", raw).Warn("Malformed payment link, recovered outcome from raw text")
	}

	reply := make(chan DeepLinkOutcome, 1)
	if !r.postContext(ctx, deepLinkEvent{link: link, reply: reply}) {
		if err := ctx.Err(); err != nil {
			return DeepLinkOutcome{}, err
		}
		return DeepLinkOutcome{}, errReconcilerStopped
	}

	select {
	case outcome := <-reply:
		return outcome, nil
	case <-ctx.Done():
		return DeepLinkOutcome{}, ctx.Err()
	case <-r.done:
		return DeepLinkOutcome{}, errReconcilerStopped
	}
}

// State returns the reconciler state
func (r *ResumptionReconciler) State() ReconcilerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Attempt returns the payment attempt being reconciled, nil when none
func (r *ResumptionReconciler) Attempt() *models.PaymentAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.attempt == nil {
		return nil
	}
	a := *r.attempt
	return &a
}

func (r *ResumptionReconciler) onPaymentPending(pending *models.PaymentAttempt) {
	a := *pending
	attempt := &a
	r.claimed = false
	r.foregroundSeq++
	r.setState(ReconcilerAwaitingPayment, attempt)

	ctx, cancel := context.WithTimeout(r.runCtx, r.cfg.CallTimeout)
	defer cancel()
	if err := r.journal.Create(ctx, attempt); err != nil {
		r.logger.WithError(err).WithField("attempt_id", attempt.ID).Warn("Failed to journal payment attempt")
	}
}

func (r *ResumptionReconciler) onForeground() {
	attempt := r.currentAttempt()
	if r.State() != ReconcilerAwaitingPayment || attempt == nil || r.claimed {
		// no payment in flight, the user only left the app for a while
		r.reloadSeats()
		return
	}

	r.foregroundSeq++
	settled := foregroundSettledEvent{seq: r.foregroundSeq, attemptID: attempt.ID}
	time.AfterFunc(r.cfg.ForegroundGrace, func() {
		r.post(settled)
	})

	r.logger.WithField("attempt_id", attempt.ID).Debug("Foreground during payment, waiting for a deep link")
}

func (r *ResumptionReconciler) onForegroundSettled(e foregroundSettledEvent) {
	attempt := r.currentAttempt()
	if e.seq != r.foregroundSeq || r.claimed || attempt == nil || attempt.ID != e.attemptID {
		return
	}

	log := r.logger.WithField("attempt_id", attempt.ID)

	if !r.booking.HasProgressed() {
		r.setState(ReconcilerIdle, attempt)
		r.reloadSeats()
		return
	}

	// back from the payment page without a result: treat as abandoned
	log.Info("Payment abandoned, restarting booking flow")
	r.claimed = true
	r.booking.Reset()
	r.resolve(attempt, models.AttemptAbandoned, models.ResolvedViaForeground)
	r.setState(ReconcilerResumedViaForeground, attempt)

	navigate := abandonNavigationEvent{seq: r.foregroundSeq}
	time.AfterFunc(r.cfg.NavigationDelay, func() {
		r.post(navigate)
	})
}

func (r *ResumptionReconciler) onDeepLink(link PaymentLink) DeepLinkOutcome {
	attempt := r.currentAttempt()
	outcome := DeepLinkOutcome{
		Handled:   true,
		Outcome:   link.Outcome,
		SessionID: link.SessionID,
		Route:     routeForOutcome(link.Outcome),
	}
	if attempt != nil {
		id := attempt.ID
		outcome.AttemptID = &id
	}

	log := r.logger.WithFields(logrus.Fields{
		"session_id": link.SessionID,
		"outcome":    link.Outcome,
	})

	if r.State() == ReconcilerResumedViaDeepLink && link.SessionID != "" && link.SessionID == r.lastSessionID {
		log.Info("Duplicate payment deep link ignored")
		outcome.Duplicate = true
		return outcome
	}

	// claim first so a pending foreground decision becomes a no-op
	r.claimed = true
	r.foregroundSeq++

	if attempt != nil && !attempt.MatchesSession(link.SessionID) {
		log.WithField("attempt_id", attempt.ID).Warn("Deep link session differs from the pending attempt")
	}

	if err := r.finishPurchase(link); err != nil {
		log.WithError(err).Warn("Best-effort purchase update failed")
		outcome.ServerCallFailed = true
	}

	r.booking.Reset()
	r.nav.Reset(outcome.Route)

	status := models.AttemptConfirmed
	if link.Outcome == PaymentCancelled {
		status = models.AttemptCancelled
	}
	if attempt != nil {
		r.resolve(attempt, status, models.ResolvedViaDeepLink)
	}
	r.lastSessionID = link.SessionID
	r.setState(ReconcilerResumedViaDeepLink, attempt)

	log.Info("Payment outcome applied from deep link")
	return outcome
}

// finishPurchase confirms or cancels server-side; errors are for logging only
func (r *ResumptionReconciler) finishPurchase(link PaymentLink) error {
	if link.SessionID == "" {
		return errMissingSessionID
	}
	token, err := r.tokens.Token()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(r.runCtx, r.cfg.CallTimeout)
	defer cancel()

	if link.Outcome == PaymentSucceeded {
		return r.purchases.ConfirmPurchase(ctx, token, link.SessionID)
	}
	return r.purchases.CancelPurchase(ctx, token, link.SessionID)
}

func (r *ResumptionReconciler) resolve(attempt *models.PaymentAttempt, status models.PaymentAttemptStatus, via models.PaymentResolutionSource) {
	now := time.Now()
	r.mu.Lock()
	attempt.Status = status
	attempt.ResolvedVia = &via
	attempt.ResolvedAt = &now
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.runCtx, r.cfg.CallTimeout)
	defer cancel()
	if err := r.journal.MarkResolved(ctx, attempt.ID, status, via); err != nil {
		r.logger.WithError(err).WithField("attempt_id", attempt.ID).Warn("Failed to journal payment resolution")
	}
}

// reloadSeats runs off the event loop; reloads are idempotent reads and the
// last response wins
func (r *ResumptionReconciler) reloadSeats() {
	ctx := r.runCtx
	go func() {
		reloadCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
		if err := r.booking.ReloadSeats(reloadCtx); err != nil {
			r.logger.WithError(err).Warn("Seat reload after resumption failed")
		}
	}()
}

func (r *ResumptionReconciler) setState(state ReconcilerState, attempt *models.PaymentAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.attempt = attempt
}

func (r *ResumptionReconciler) currentAttempt() *models.PaymentAttempt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attempt
}

func (r *ResumptionReconciler) post(ev interface{}) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *ResumptionReconciler) postContext(ctx context.Context, ev interface{}) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func routeForOutcome(outcome PaymentOutcome) models.Route {
	if outcome == PaymentSucceeded {
		return models.RouteHome
	}
	return models.RouteTripSelection
}

type noopJournal struct{}

func (noopJournal) Create(context.Context, *models.PaymentAttempt) error { return nil }

func (noopJournal) MarkResolved(context.Context, uuid.UUID, models.PaymentAttemptStatus, models.PaymentResolutionSource) error {
	return nil
}
