package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/sirupsen/logrus"
)

// BookingAPI is the remote API surface the booking flow consumes
type BookingAPI interface {
	PaymentGateway
	PurchaseFinalizer
	GetTripDetail(ctx context.Context, token, tripID string) (*models.TripDetail, error)
	GetBookingSettings(ctx context.Context, token string) (*models.BookingSettings, error)
	DownloadTicketPDF(ctx context.Context, token, purchaseID string) ([]byte, error)
}

// PaymentStarter opens a payment session for a finalized booking
type PaymentStarter interface {
	CreatePaymentSession(ctx context.Context, token string, req *models.PurchaseRequest) (*models.PaymentAttempt, error)
}

// OrchestratorConfig holds booking defaults
type OrchestratorConfig struct {
	// DefaultPassengerLimit applies when the remote configuration is unavailable
	DefaultPassengerLimit int
}

// BookingSnapshot is what the host renders for the current step
type BookingSnapshot struct {
	State          models.RoundTripState  `json:"state"`
	ActiveLeg      models.LegKind         `json:"active_leg"`
	SeatMap        []models.SeatView      `json:"seat_map"`
	SelectedSeats  []int                  `json:"selected_seats"`
	Quote          models.FareQuote       `json:"quote"`
	PassengerLimit int                    `json:"passenger_limit"`
	Discount       models.DiscountProfile `json:"discount"`
}

// BookingOrchestrator drives one user's booking attempt: trip and seat
// selection, pricing, and the hand-off to payment. Network calls are made
// without holding the lock; their results are applied only if the booking
// still expects them.
type BookingOrchestrator struct {
	mu       sync.Mutex
	api      BookingAPI
	session  *SessionProvider
	payments PaymentStarter
	config   OrchestratorConfig
	logger   *logrus.Logger

	machine        *BookingStateMachine
	passengerLimit int
	discount       models.DiscountProfile
	trips          map[models.LegKind]*models.TripDetail
	seatViews      map[models.LegKind][]models.SeatView
	selection      SeatSelection
}

// NewBookingOrchestrator creates the orchestrator of one user
func NewBookingOrchestrator(api BookingAPI, session *SessionProvider, config OrchestratorConfig, logger *logrus.Logger) *BookingOrchestrator {
	if config.DefaultPassengerLimit < 1 {
		config.DefaultPassengerLimit = 1
	}
	return &BookingOrchestrator{
		api:            api,
		session:        session,
		config:         config,
		logger:         logger,
		passengerLimit: config.DefaultPassengerLimit,
		discount:       models.DiscountProfile{Category: models.DiscountNone},
		trips:          make(map[models.LegKind]*models.TripDetail),
		seatViews:      make(map[models.LegKind][]models.SeatView),
		selection:      NewSeatSelection(),
	}
}

// SetPaymentStarter wires the payment bridge, which itself needs the reconciler
func (o *BookingOrchestrator) SetPaymentStarter(payments PaymentStarter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payments = payments
}

// Start begins a booking attempt for a route. The configuration snapshot is
// fetched once per attempt; if it can't be read the booking proceeds with
// no discount and the default passenger limit.
func (o *BookingOrchestrator) Start(ctx context.Context, req models.BookingRequest) (BookingSnapshot, error) {
	if req.Passengers < 1 {
		return BookingSnapshot{}, fmt.Errorf("%w: at least one passenger is required", models.ErrIncompleteSelection)
	}
	if req.OriginLocalityID == "" || req.OriginLocalityID == req.DestinationLocalityID {
		return BookingSnapshot{}, fmt.Errorf("%w: origin and destination must differ", models.ErrInvalidBookingState)
	}

	token, err := o.session.Token()
	if err != nil {
		return BookingSnapshot{}, err
	}

	profile := o.session.Profile()
	limit := o.config.DefaultPassengerLimit
	discount := models.DiscountProfile{Category: models.DiscountNone}

	settings, err := o.api.GetBookingSettings(ctx, token)
	switch {
	case errors.Is(err, models.ErrSessionExpired):
		o.session.MarkExpired()
		return BookingSnapshot{}, err
	case err != nil:
		o.logger.WithError(err).WithField("user_id", profile.ID).Warn("Booking settings unavailable, continuing without discount")
	default:
		if settings.PassengerLimit > 0 {
			limit = settings.PassengerLimit
		}
		discount = settings.ProfileFor(profile.Category)
	}

	if req.Passengers > limit {
		return BookingSnapshot{}, fmt.Errorf("%w: at most %d passengers per booking", models.ErrSeatLimitExceeded, limit)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.machine = NewBookingStateMachine(req)
	o.passengerLimit = limit
	o.discount = discount
	o.clearLegsLocked()

	o.logger.WithFields(logrus.Fields{
		"user_id":     profile.ID,
		"trip_type":   req.TripType,
		"passengers":  req.Passengers,
		"discount":    discount.Category,
		"discount_pc": discount.Percentage,
	}).Info("Booking started")

	return o.snapshotLocked(), nil
}

// ChooseTrip selects the trip of the leg the booking is currently on
func (o *BookingOrchestrator) ChooseTrip(ctx context.Context, tripID string) (BookingSnapshot, error) {
	o.mu.Lock()
	if o.machine == nil {
		o.mu.Unlock()
		return BookingSnapshot{}, models.ErrNoBookingInProgress
	}
	step := o.machine.CurrentStep()
	if step != models.StepSelectTripOutbound && step != models.StepSelectTripReturn {
		o.mu.Unlock()
		return BookingSnapshot{}, fmt.Errorf("%w: not choosing a trip at step %s", models.ErrInvalidBookingState, step)
	}
	kind := o.machine.ActiveLeg()
	originID, destinationID := o.machine.LegEndpoints(kind)
	o.mu.Unlock()

	trip, err := o.fetchTrip(ctx, tripID)
	if err != nil {
		return BookingSnapshot{}, err
	}

	origin, ok := findStop(trip.Stops, originID)
	if !ok {
		origin = models.Stop{LocalityID: originID}
	}
	destination, ok := findStop(trip.Stops, destinationID)
	if !ok {
		destination = models.Stop{LocalityID: destinationID}
	}
	price := PriceForSegment(trip.SegmentPrice, trip.Stops, originID, destinationID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.machine == nil {
		return BookingSnapshot{}, models.ErrNoBookingInProgress
	}
	if err := o.machine.SelectTrip(kind, trip.ID, origin, destination, price); err != nil {
		return BookingSnapshot{}, err
	}
	o.trips[kind] = trip
	o.seatViews[kind] = BuildSeatViews(trip.Seats, price)
	o.selection = NewSeatSelection()

	return o.snapshotLocked(), nil
}

// ToggleSeat selects or deselects a seat on the current leg
func (o *BookingOrchestrator) ToggleSeat(seatNumber int) (BookingSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireSeatStepLocked(); err != nil {
		return BookingSnapshot{}, err
	}

	kind := o.machine.ActiveLeg()
	next, err := ToggleSeat(o.seatViews[kind], seatNumber, o.selection, o.machine.Request().Passengers)
	if err != nil {
		return BookingSnapshot{}, err
	}
	o.selection = next
	return o.snapshotLocked(), nil
}

// ConfirmSeats records the selected seats and moves to the next step
func (o *BookingOrchestrator) ConfirmSeats() (BookingSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireSeatStepLocked(); err != nil {
		return BookingSnapshot{}, err
	}

	kind := o.machine.ActiveLeg()
	if err := o.machine.RecordSeatSelection(kind, o.selection.Numbers()); err != nil {
		return BookingSnapshot{}, err
	}
	if _, err := o.machine.Advance(); err != nil {
		return BookingSnapshot{}, err
	}
	o.selection = NewSeatSelection()
	return o.snapshotLocked(), nil
}

// Back goes one step back in the flow
func (o *BookingOrchestrator) Back() (BookingSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.machine == nil {
		return BookingSnapshot{}, models.ErrNoBookingInProgress
	}
	if _, err := o.machine.Back(); err != nil {
		return BookingSnapshot{}, err
	}

	o.selection = NewSeatSelection()
	kind := o.machine.ActiveLeg()
	switch o.machine.CurrentStep() {
	case models.StepSelectSeatOutbound, models.StepSelectSeatReturn:
		if leg := o.machine.Leg(kind); leg != nil {
			o.selection = NewSeatSelection(leg.SelectedSeatNumbers...)
		}
	case models.StepSelectTripOutbound, models.StepSelectTripReturn:
		delete(o.trips, kind)
		delete(o.seatViews, kind)
	}
	return o.snapshotLocked(), nil
}

// Quote prices the booking as selected so far
func (o *BookingOrchestrator) Quote() (models.FareQuote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.machine == nil {
		return models.FareQuote{}, models.ErrNoBookingInProgress
	}
	return o.quoteLocked(), nil
}

// Checkout finalizes the booking and opens the payment session.
//
// An invalid booking is fatal and resets the attempt. A seat conflict
// reloads the seat maps and sends the traveler back to re-pick seats on the
// leg that lost them. An expired session is propagated for re-authentication.
func (o *BookingOrchestrator) Checkout(ctx context.Context) (*models.PaymentAttempt, error) {
	token, err := o.session.Token()
	if err != nil {
		return nil, err
	}
	profile := o.session.Profile()

	o.mu.Lock()
	if o.machine == nil {
		o.mu.Unlock()
		return nil, models.ErrNoBookingInProgress
	}
	if o.machine.CurrentStep() != models.StepFinalize {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: seats are still being selected", models.ErrIncompleteSelection)
	}
	req, err := o.machine.Finalize(profile, o.quoteLocked())
	if err != nil {
		o.logger.WithError(err).WithField("user_id", profile.ID).Error("Booking cannot be finalized, restarting")
		o.resetLocked()
		o.mu.Unlock()
		return nil, err
	}
	payments := o.payments
	o.mu.Unlock()

	attempt, err := payments.CreatePaymentSession(ctx, token, req)
	if err == nil {
		return attempt, nil
	}

	var conflict *models.SeatConflictError
	switch {
	case errors.Is(err, models.ErrSessionExpired):
		o.session.MarkExpired()
		o.reopen(false)
	case errors.As(err, &conflict):
		o.recoverFromConflict(ctx)
	default:
		o.reopen(false)
	}
	return nil, err
}

// ReloadSeats refreshes the seat map of every chosen leg. Selected seats
// that were taken meanwhile are dropped from the selection.
func (o *BookingOrchestrator) ReloadSeats(ctx context.Context) error {
	o.mu.Lock()
	if o.machine == nil {
		o.mu.Unlock()
		return nil
	}
	legs := make(map[models.LegKind]string)
	for kind, trip := range o.trips {
		legs[kind] = trip.ID
	}
	o.mu.Unlock()

	for kind, tripID := range legs {
		trip, err := o.fetchTrip(ctx, tripID)
		if err != nil {
			return err
		}
		o.applyReload(kind, trip)
	}
	return nil
}

// Reset returns the booking to its first step, keeping the chosen route
func (o *BookingOrchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

// HasProgressed reports whether the booking moved past the first trip selection
func (o *BookingOrchestrator) HasProgressed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine != nil && o.machine.HasProgressed()
}

// Snapshot returns the current booking view
func (o *BookingOrchestrator) Snapshot() (BookingSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.machine == nil {
		return BookingSnapshot{}, models.ErrNoBookingInProgress
	}
	return o.snapshotLocked(), nil
}

// TicketPDF downloads the ticket of a finished purchase
func (o *BookingOrchestrator) TicketPDF(ctx context.Context, purchaseID string) ([]byte, error) {
	token, err := o.session.Token()
	if err != nil {
		return nil, err
	}
	data, err := o.api.DownloadTicketPDF(ctx, token, purchaseID)
	if errors.Is(err, models.ErrSessionExpired) {
		o.session.MarkExpired()
	}
	return data, err
}

func (o *BookingOrchestrator) fetchTrip(ctx context.Context, tripID string) (*models.TripDetail, error) {
	token, err := o.session.Token()
	if err != nil {
		return nil, err
	}
	trip, err := o.api.GetTripDetail(ctx, token, tripID)
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			o.session.MarkExpired()
		}
		return nil, err
	}
	return trip, nil
}

// applyReload swaps in a fresh seat map if the leg still has the same trip
func (o *BookingOrchestrator) applyReload(kind models.LegKind, trip *models.TripDetail) []int {
	o.mu.Lock()
	defer o.mu.Unlock()

	current, ok := o.trips[kind]
	if !ok || current.ID != trip.ID || o.machine == nil {
		return nil
	}

	price := trip.SegmentPrice
	if leg := o.machine.Leg(kind); leg != nil {
		price = PriceForSegment(trip.SegmentPrice, trip.Stops, leg.OriginStop.LocalityID, leg.DestinationStop.LocalityID)
	}
	o.trips[kind] = trip
	o.seatViews[kind] = BuildSeatViews(trip.Seats, price)

	if kind != o.machine.ActiveLeg() {
		return nil
	}
	kept, dropped := PruneSelection(o.seatViews[kind], o.selection)
	o.selection = kept
	if len(dropped) > 0 {
		o.logger.WithFields(logrus.Fields{
			"leg":     kind,
			"dropped": dropped,
		}).Info("Selected seats were taken, dropped from selection")
	}
	return dropped
}

// recoverFromConflict reloads both legs and reopens the first leg whose
// recorded seats are no longer all available
func (o *BookingOrchestrator) recoverFromConflict(ctx context.Context) {
	o.mu.Lock()
	legs := make(map[models.LegKind]string)
	for kind, trip := range o.trips {
		legs[kind] = trip.ID
	}
	o.mu.Unlock()

	fresh := make(map[models.LegKind]*models.TripDetail)
	for kind, tripID := range legs {
		trip, err := o.fetchTrip(ctx, tripID)
		if err != nil {
			o.logger.WithError(err).WithField("leg", kind).Warn("Seat reload after conflict failed")
			continue
		}
		fresh[kind] = trip
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.machine == nil {
		return
	}

	lost := o.machine.LastLeg()
	for _, kind := range []models.LegKind{models.LegReturn, models.LegOutbound} {
		trip, ok := fresh[kind]
		leg := o.machine.Leg(kind)
		if !ok || leg == nil || leg.TripID != trip.ID {
			continue
		}
		views := BuildSeatViews(trip.Seats, leg.PerSeatPrice)
		o.trips[kind] = trip
		o.seatViews[kind] = views
		if _, dropped := PruneSelection(views, NewSeatSelection(leg.SelectedSeatNumbers...)); len(dropped) > 0 {
			lost = kind
		}
	}

	o.machine.Reopen(lost, true)
	if lost == models.LegOutbound {
		delete(o.trips, models.LegReturn)
		delete(o.seatViews, models.LegReturn)
	}
	o.selection = NewSeatSelection()
}

func (o *BookingOrchestrator) reopen(clearSeats bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.machine == nil {
		return
	}
	kind := o.machine.LastLeg()
	o.machine.Reopen(kind, clearSeats)
	o.selection = NewSeatSelection()
	if leg := o.machine.Leg(o.machine.ActiveLeg()); leg != nil {
		o.selection = NewSeatSelection(leg.SelectedSeatNumbers...)
	}
}

func (o *BookingOrchestrator) requireSeatStepLocked() error {
	if o.machine == nil {
		return models.ErrNoBookingInProgress
	}
	step := o.machine.CurrentStep()
	if step != models.StepSelectSeatOutbound && step != models.StepSelectSeatReturn {
		return fmt.Errorf("%w: not selecting seats at step %s", models.ErrInvalidBookingState, step)
	}
	return nil
}

func (o *BookingOrchestrator) quoteLocked() models.FareQuote {
	legs := make(map[models.LegKind]*models.ItineraryLeg, 2)
	state := o.machine.Snapshot()
	if state.OutboundLeg != nil {
		legs[models.LegOutbound] = state.OutboundLeg
	}
	if state.ReturnLeg != nil {
		legs[models.LegReturn] = state.ReturnLeg
	}

	// price the seats being picked right now as well
	if err := o.requireSeatStepLocked(); err == nil {
		if leg := legs[o.machine.ActiveLeg()]; leg != nil {
			leg.SelectedSeatNumbers = o.selection.Numbers()
		}
	}
	return QuoteBooking(legs, o.discount)
}

func (o *BookingOrchestrator) snapshotLocked() BookingSnapshot {
	kind := o.machine.ActiveLeg()
	return BookingSnapshot{
		State:          o.machine.Snapshot(),
		ActiveLeg:      kind,
		SeatMap:        ApplySelection(o.seatViews[kind], o.selection),
		SelectedSeats:  o.selection.Numbers(),
		Quote:          o.quoteLocked(),
		PassengerLimit: o.passengerLimit,
		Discount:       o.discount,
	}
}

func (o *BookingOrchestrator) resetLocked() {
	if o.machine != nil {
		o.machine.Reset()
	}
	o.clearLegsLocked()
}

func (o *BookingOrchestrator) clearLegsLocked() {
	o.trips = make(map[models.LegKind]*models.TripDetail)
	o.seatViews = make(map[models.LegKind][]models.SeatView)
	o.selection = NewSeatSelection()
}
