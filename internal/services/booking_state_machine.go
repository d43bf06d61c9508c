package services

import (
	"fmt"

	"github.com/charruabus/booking-agent/internal/models"
)

// BookingStateMachine tracks one booking attempt through its steps.
//
// Round trip:  select_trip_outbound → select_seat_outbound → select_trip_return
// → select_seat_return → finalize.
// One way:     select_trip_outbound → select_seat_outbound → finalize.
//
// It is not safe for concurrent use; the orchestrator serializes access.
type BookingStateMachine struct {
	request   models.BookingRequest
	step      models.BookingStep
	outbound  *models.ItineraryLeg
	inbound   *models.ItineraryLeg
	finalized bool
}

// NewBookingStateMachine starts a booking at the first trip selection step
func NewBookingStateMachine(req models.BookingRequest) *BookingStateMachine {
	if req.TripType == "" {
		req.TripType = models.TripTypeOneWay
	}
	return &BookingStateMachine{
		request: req,
		step:    models.InitialStep,
	}
}

// Request returns the route and passenger choice the booking was started with
func (m *BookingStateMachine) Request() models.BookingRequest {
	return m.request
}

// CurrentStep returns the step the booking is at
func (m *BookingStateMachine) CurrentStep() models.BookingStep {
	return m.step
}

// IsRoundTrip reports whether a return leg is part of this booking
func (m *BookingStateMachine) IsRoundTrip() bool {
	return m.request.TripType == models.TripTypeRoundTrip
}

// HasProgressed reports whether the booking moved past the initial step
func (m *BookingStateMachine) HasProgressed() bool {
	return m.step != models.InitialStep
}

// ActiveLeg is the leg the current step works on
func (m *BookingStateMachine) ActiveLeg() models.LegKind {
	switch m.step {
	case models.StepSelectTripReturn, models.StepSelectSeatReturn:
		return models.LegReturn
	default:
		return models.LegOutbound
	}
}

// Leg returns the leg of the given kind, nil when not chosen yet
func (m *BookingStateMachine) Leg(kind models.LegKind) *models.ItineraryLeg {
	if kind == models.LegReturn {
		return m.inbound
	}
	return m.outbound
}

// LegEndpoints returns the origin and destination localities of a leg.
// The return leg travels the outbound route backwards.
func (m *BookingStateMachine) LegEndpoints(kind models.LegKind) (originID, destinationID string) {
	if kind == models.LegReturn {
		return m.request.DestinationLocalityID, m.request.OriginLocalityID
	}
	return m.request.OriginLocalityID, m.request.DestinationLocalityID
}

// SelectTrip records the trip chosen for a leg and moves to its seat step
func (m *BookingStateMachine) SelectTrip(kind models.LegKind, tripID string, origin, destination models.Stop, perSeatPrice float64) error {
	expected := models.StepSelectTripOutbound
	next := models.StepSelectSeatOutbound
	if kind == models.LegReturn {
		if !m.IsRoundTrip() {
			return fmt.Errorf("%w: one-way booking has no return leg", models.ErrInvalidBookingState)
		}
		expected = models.StepSelectTripReturn
		next = models.StepSelectSeatReturn
	}
	if m.step != expected {
		return fmt.Errorf("%w: cannot select %s trip at step %s", models.ErrInvalidBookingState, kind, m.step)
	}
	if tripID == "" {
		return fmt.Errorf("%w: empty trip id", models.ErrInvalidBookingState)
	}

	leg := &models.ItineraryLeg{
		OriginStop:          origin,
		DestinationStop:     destination,
		TripID:              tripID,
		SelectedSeatNumbers: []int{},
		PerSeatPrice:        perSeatPrice,
	}
	if kind == models.LegReturn {
		m.inbound = leg
	} else {
		m.outbound = leg
	}
	m.step = next
	return nil
}

// RecordSeatSelection stores the seats of a leg. Exactly one seat per
// passenger is required, otherwise ErrIncompleteSelection and nothing changes.
func (m *BookingStateMachine) RecordSeatSelection(kind models.LegKind, seatNumbers []int) error {
	leg := m.Leg(kind)
	if leg == nil {
		return fmt.Errorf("%w: no %s trip selected", models.ErrInvalidBookingState, kind)
	}
	if len(seatNumbers) != m.request.Passengers {
		return fmt.Errorf("%w: %d of %d seats selected", models.ErrIncompleteSelection, len(seatNumbers), m.request.Passengers)
	}

	seen := make(map[int]struct{}, len(seatNumbers))
	for _, n := range seatNumbers {
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: seat %d selected twice", models.ErrIncompleteSelection, n)
		}
		seen[n] = struct{}{}
	}

	leg.SelectedSeatNumbers = append([]int(nil), seatNumbers...)
	return nil
}

// Advance moves past a seat step once its leg is complete and returns the new step
func (m *BookingStateMachine) Advance() (models.BookingStep, error) {
	switch m.step {
	case models.StepSelectSeatOutbound:
		if !m.legHasAllSeats(m.outbound) {
			return m.step, models.ErrIncompleteSelection
		}
		if m.IsRoundTrip() {
			m.step = models.StepSelectTripReturn
		} else {
			m.step = models.StepFinalize
		}
	case models.StepSelectSeatReturn:
		if !m.legHasAllSeats(m.inbound) {
			return m.step, models.ErrIncompleteSelection
		}
		m.step = models.StepFinalize
	default:
		return m.step, fmt.Errorf("%w: cannot advance from %s", models.ErrInvalidBookingState, m.step)
	}
	return m.step, nil
}

// Back returns to the previous step. Going back to a trip step drops that
// leg; going back to a seat step keeps the recorded seats for re-editing.
func (m *BookingStateMachine) Back() (models.BookingStep, error) {
	if m.finalized {
		return m.step, fmt.Errorf("%w: booking already finalized", models.ErrInvalidBookingState)
	}
	switch m.step {
	case models.StepSelectSeatOutbound:
		m.outbound = nil
		m.step = models.StepSelectTripOutbound
	case models.StepSelectTripReturn:
		m.step = models.StepSelectSeatOutbound
	case models.StepSelectSeatReturn:
		m.inbound = nil
		m.step = models.StepSelectTripReturn
	case models.StepFinalize:
		if m.IsRoundTrip() {
			m.step = models.StepSelectSeatReturn
		} else {
			m.step = models.StepSelectSeatOutbound
		}
	default:
		return m.step, fmt.Errorf("%w: already at the first step", models.ErrInvalidBookingState)
	}
	return m.step, nil
}

// Finalize validates the completed booking and builds the purchase request.
// It succeeds once per attempt; a second call or a missing leg fails with
// ErrInvalidBookingState and the attempt must be restarted.
func (m *BookingStateMachine) Finalize(user models.UserProfile, quote models.FareQuote) (*models.PurchaseRequest, error) {
	if m.finalized {
		return nil, fmt.Errorf("%w: booking already finalized", models.ErrInvalidBookingState)
	}
	if m.step != models.StepFinalize {
		return nil, fmt.Errorf("%w: cannot finalize at step %s", models.ErrInvalidBookingState, m.step)
	}
	if !m.outbound.IsComplete() {
		return nil, fmt.Errorf("%w: outbound leg is incomplete", models.ErrInvalidBookingState)
	}
	if m.IsRoundTrip() && !m.inbound.IsComplete() {
		return nil, fmt.Errorf("%w: return leg is incomplete", models.ErrInvalidBookingState)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: no authenticated user", models.ErrInvalidBookingState)
	}

	req := &models.PurchaseRequest{
		UserID:                user.ID,
		OutboundTripID:        m.outbound.TripID,
		OutboundSeats:         append([]int(nil), m.outbound.SelectedSeatNumbers...),
		ReturnSeats:           []int{},
		OutboundOriginID:      m.outbound.OriginStop.LocalityID,
		OutboundDestinationID: m.outbound.DestinationStop.LocalityID,
		DiscountCategory:      string(quote.Category),
		QuotedTotal:           quote.FinalTotal,
	}
	if m.IsRoundTrip() {
		returnTripID := m.inbound.TripID
		returnOrigin := m.inbound.OriginStop.LocalityID
		returnDestination := m.inbound.DestinationStop.LocalityID
		req.ReturnTripID = &returnTripID
		req.ReturnSeats = append([]int(nil), m.inbound.SelectedSeatNumbers...)
		req.ReturnOriginID = &returnOrigin
		req.ReturnDestinationID = &returnDestination
	}

	m.finalized = true
	return req, nil
}

// Finalized reports whether the purchase request was already built
func (m *BookingStateMachine) Finalized() bool {
	return m.finalized
}

// Reopen makes the booking editable again after no payment session could be
// created, going back to the seat step of the given leg. With clearSeats the
// leg's seats are dropped so the traveler re-picks them. Going back to the
// outbound leg drops the return leg, which only exists past that step.
func (m *BookingStateMachine) Reopen(kind models.LegKind, clearSeats bool) {
	m.finalized = false
	if kind == models.LegReturn && m.IsRoundTrip() && m.inbound != nil {
		m.step = models.StepSelectSeatReturn
		if clearSeats {
			m.inbound.SelectedSeatNumbers = []int{}
		}
		return
	}
	if m.outbound == nil {
		m.step = models.InitialStep
		return
	}
	m.inbound = nil
	m.step = models.StepSelectSeatOutbound
	if clearSeats {
		m.outbound.SelectedSeatNumbers = []int{}
	}
}

// LastLeg is the leg completed last before finalizing
func (m *BookingStateMachine) LastLeg() models.LegKind {
	if m.IsRoundTrip() {
		return models.LegReturn
	}
	return models.LegOutbound
}

// Reset clears both legs and returns to the initial step
func (m *BookingStateMachine) Reset() {
	m.step = models.InitialStep
	m.outbound = nil
	m.inbound = nil
	m.finalized = false
}

// Snapshot returns a copy of the booking state
func (m *BookingStateMachine) Snapshot() models.RoundTripState {
	return models.RoundTripState{
		TripType:    m.request.TripType,
		CurrentStep: m.step,
		Passengers:  m.request.Passengers,
		OutboundLeg: copyLeg(m.outbound),
		ReturnLeg:   copyLeg(m.inbound),
	}
}

func (m *BookingStateMachine) legHasAllSeats(leg *models.ItineraryLeg) bool {
	return leg != nil && leg.TripID != "" && len(leg.SelectedSeatNumbers) == m.request.Passengers && m.request.Passengers > 0
}

func copyLeg(leg *models.ItineraryLeg) *models.ItineraryLeg {
	if leg == nil {
		return nil
	}
	c := *leg
	c.SelectedSeatNumbers = append([]int{}, leg.SelectedSeatNumbers...)
	return &c
}
