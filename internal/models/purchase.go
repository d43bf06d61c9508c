package models

// PurchaseRequest is the payload sent to create a payment session.
// Return leg fields are nil/empty for one-way bookings.
type PurchaseRequest struct {
	UserID                string  `json:"user_id"`
	OutboundTripID        string  `json:"outbound_trip_id"`
	ReturnTripID          *string `json:"return_trip_id"`
	OutboundSeats         []int   `json:"outbound_seats"`
	ReturnSeats           []int   `json:"return_seats"`
	OutboundOriginID      string  `json:"outbound_origin_id"`
	OutboundDestinationID string  `json:"outbound_destination_id"`
	ReturnOriginID        *string `json:"return_origin_id"`
	ReturnDestinationID   *string `json:"return_destination_id"`
	DiscountCategory      string  `json:"discount_category"`
	QuotedTotal           float64 `json:"quoted_total"`
}

// PaymentSession is the response of the payment session endpoint
type PaymentSession struct {
	SessionURL string `json:"url"`
	SessionID  string `json:"session_id,omitempty"`
}

// PurchaseOutcomeRequest confirms or cancels a purchase by provider session id
type PurchaseOutcomeRequest struct {
	SessionID string `json:"session_id"`
}

// FareLine is the priced part of one leg
type FareLine struct {
	Leg          LegKind `json:"leg"`
	TripID       string  `json:"trip_id"`
	PerSeatPrice float64 `json:"per_seat_price"`
	Seats        int     `json:"seats"`
	Subtotal     float64 `json:"subtotal"`
}

// FareQuote is the priced booking, discount applied once on the combined total
type FareQuote struct {
	Lines          []FareLine       `json:"lines"`
	BaseTotal      float64          `json:"base_total"`
	Category       DiscountCategory `json:"category"`
	Percentage     float64          `json:"percentage"`
	DiscountAmount float64          `json:"discount_amount"`
	FinalTotal     float64          `json:"final_total"`
}
