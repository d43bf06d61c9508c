package services

import (
	"sort"

	"github.com/charruabus/booking-agent/internal/models"
)

// SeatSelection is a set of selected seat numbers. Seat numbers are the only
// identity that survives a seat map reload, so the set never holds indexes.
type SeatSelection map[int]struct{}

// NewSeatSelection builds a selection from seat numbers
func NewSeatSelection(numbers ...int) SeatSelection {
	sel := make(SeatSelection, len(numbers))
	for _, n := range numbers {
		sel[n] = struct{}{}
	}
	return sel
}

// Has reports whether a seat number is selected
func (s SeatSelection) Has(number int) bool {
	_, ok := s[number]
	return ok
}

// Numbers returns the selected seat numbers in ascending order
func (s SeatSelection) Numbers() []int {
	numbers := make([]int, 0, len(s))
	for n := range s {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func (s SeatSelection) clone() SeatSelection {
	out := make(SeatSelection, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// LocalStateFor maps a server seat status to the client state.
// Anything not recognised as available renders occupied.
func LocalStateFor(rawStatus string) models.SeatLocalState {
	switch models.NormalizeSeatStatus(rawStatus) {
	case models.SeatStatusAvailable:
		return models.SeatLocalAvailable
	case models.SeatStatusHeld, models.SeatStatusConfirmed:
		return models.SeatLocalOccupied
	default:
		return models.SeatLocalOccupied
	}
}

// BuildSeatViews places seats on the 4-column grid, sorted by seat number
func BuildSeatViews(seats []models.Seat, perSeatPrice float64) []models.SeatView {
	views := make([]models.SeatView, 0, len(seats))
	for _, seat := range seats {
		view := models.SeatView{
			Seat:       seat,
			LocalState: LocalStateFor(seat.RawStatus),
			Price:      perSeatPrice,
		}
		if seat.Number >= 1 {
			view.Row = (seat.Number + 3) / 4
			view.Column = models.SeatColumns[(seat.Number-1)%4]
		} else {
			// no grid position, never selectable
			view.LocalState = models.SeatLocalOccupied
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Seat.Number < views[j].Seat.Number
	})
	return views
}

// ApplySelection returns a copy of views with selected seats marked selected
func ApplySelection(views []models.SeatView, sel SeatSelection) []models.SeatView {
	out := make([]models.SeatView, len(views))
	copy(out, views)
	for i := range out {
		if out[i].LocalState == models.SeatLocalAvailable && sel.Has(out[i].Seat.Number) {
			out[i].LocalState = models.SeatLocalSelected
		}
	}
	return out
}

// ToggleSeat selects or deselects one seat and returns the new selection.
// The input selection is never mutated. Seats that are not available are a
// no-op, deselecting is always allowed and selecting past the limit fails
// with ErrSeatLimitExceeded.
func ToggleSeat(views []models.SeatView, seatNumber int, sel SeatSelection, passengerLimit int) (SeatSelection, error) {
	view, ok := findView(views, seatNumber)
	if !ok || view.LocalState == models.SeatLocalOccupied {
		return sel, nil
	}

	if sel.Has(seatNumber) {
		next := sel.clone()
		delete(next, seatNumber)
		return next, nil
	}

	if len(sel) >= passengerLimit {
		return sel, models.ErrSeatLimitExceeded
	}

	next := sel.clone()
	next[seatNumber] = struct{}{}
	return next, nil
}

// PruneSelection drops selected seats that are no longer available, for
// example after a reload shows another traveler took them
func PruneSelection(views []models.SeatView, sel SeatSelection) (SeatSelection, []int) {
	kept := make(SeatSelection, len(sel))
	var dropped []int
	for _, n := range sel.Numbers() {
		view, ok := findView(views, n)
		if ok && view.LocalState != models.SeatLocalOccupied {
			kept[n] = struct{}{}
			continue
		}
		dropped = append(dropped, n)
	}
	return kept, dropped
}

func findView(views []models.SeatView, seatNumber int) (models.SeatView, bool) {
	for _, v := range views {
		if v.Seat.Number == seatNumber {
			return v, true
		}
	}
	return models.SeatView{}, false
}
