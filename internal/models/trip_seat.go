package models

import (
	"strings"
	"time"
)

// SeatStatus is the seat status reported by the remote API.
// The server vocabulary is not case-stable, so compare through NormalizeSeatStatus.
type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusHeld      SeatStatus = "HELD"
	SeatStatusConfirmed SeatStatus = "CONFIRMED"
)

// NormalizeSeatStatus upper-cases and trims a raw status string
func NormalizeSeatStatus(raw string) SeatStatus {
	return SeatStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// SeatLocalState is the state a seat is rendered with on the client
type SeatLocalState string

const (
	SeatLocalAvailable SeatLocalState = "available"
	SeatLocalOccupied  SeatLocalState = "occupied"
	SeatLocalSelected  SeatLocalState = "selected"
)

// SeatColumns are the four seat columns of a coach, left to right
var SeatColumns = [4]string{"A", "B", "C", "D"}

// Stop is one stop of a trip's route
type Stop struct {
	LocalityID    string    `json:"locality_id"`
	Name          string    `json:"name"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Order         int       `json:"order"`
}

// Seat is a seat record as returned by the trip detail API
type Seat struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	RawStatus string `json:"status"`
}

// SeatView is a seat placed on the 4-column grid with its derived local state
type SeatView struct {
	Seat       Seat           `json:"seat"`
	Row        int            `json:"row"`
	Column     string         `json:"column"`
	LocalState SeatLocalState `json:"local_state"`
	Price      float64        `json:"price"`
}

// TripDetail is the trip detail read model
type TripDetail struct {
	ID            string    `json:"id"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
	SegmentPrice  float64   `json:"segment_price"`
	Stops         []Stop    `json:"stops"`
	Seats         []Seat    `json:"seats"`
}
