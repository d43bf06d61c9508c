package models

// TripType distinguishes one-way from round-trip bookings
type TripType string

const (
	TripTypeOneWay    TripType = "one_way"
	TripTypeRoundTrip TripType = "round_trip"
)

// BookingStep is the step a booking attempt is currently at.
// One-way bookings only ever use the outbound steps.
type BookingStep string

const (
	StepSelectTripOutbound BookingStep = "select_trip_outbound"
	StepSelectSeatOutbound BookingStep = "select_seat_outbound"
	StepSelectTripReturn   BookingStep = "select_trip_return"
	StepSelectSeatReturn   BookingStep = "select_seat_return"
	StepFinalize           BookingStep = "finalize"
)

// InitialStep is the step every booking attempt starts from
const InitialStep = StepSelectTripOutbound

// LegKind identifies one direction of travel
type LegKind string

const (
	LegOutbound LegKind = "outbound"
	LegReturn   LegKind = "return"
)

// BookingRequest is the route/date choice made before the booking flow starts
type BookingRequest struct {
	TripType              TripType `json:"trip_type" binding:"required,oneof=one_way round_trip"`
	OriginLocalityID      string   `json:"origin_id" binding:"required"`
	DestinationLocalityID string   `json:"destination_id" binding:"required"`
	Passengers            int      `json:"passengers" binding:"required,gte=1"`
}

// ItineraryLeg is one chosen trip with its seats
type ItineraryLeg struct {
	OriginStop          Stop    `json:"origin_stop"`
	DestinationStop     Stop    `json:"destination_stop"`
	TripID              string  `json:"trip_id"`
	SelectedSeatNumbers []int   `json:"selected_seat_numbers"`
	PerSeatPrice        float64 `json:"per_seat_price"`
}

// IsComplete reports whether the leg carries a trip and at least one seat
func (l *ItineraryLeg) IsComplete() bool {
	return l != nil && l.TripID != "" && len(l.SelectedSeatNumbers) > 0
}

// RoundTripState is the snapshot of one booking attempt
type RoundTripState struct {
	TripType    TripType      `json:"trip_type"`
	CurrentStep BookingStep   `json:"current_step"`
	Passengers  int           `json:"passengers"`
	OutboundLeg *ItineraryLeg `json:"outbound_leg,omitempty"`
	ReturnLeg   *ItineraryLeg `json:"return_leg,omitempty"`
}
