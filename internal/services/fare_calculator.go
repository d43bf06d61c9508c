package services

import (
	"math"

	"github.com/charruabus/booking-agent/internal/models"
)

// PriceForSegment prices one seat between two localities of a trip.
// The price is perSegmentPrice times the number of stretches between the
// two stops, never less than one stretch. Unknown localities price as a
// single stretch instead of failing, there is no other route to offer.
func PriceForSegment(perSegmentPrice float64, stops []models.Stop, originID, destinationID string) float64 {
	origin, okOrigin := findStop(stops, originID)
	destination, okDestination := findStop(stops, destinationID)
	if !okOrigin || !okDestination {
		return perSegmentPrice
	}
	return perSegmentPrice * float64(SegmentCount(origin, destination))
}

// SegmentCount is the number of stretches between two stops, at least 1
func SegmentCount(origin, destination models.Stop) int {
	n := destination.Order - origin.Order
	if n < 0 {
		n = -n
	}
	if n < 1 {
		return 1
	}
	return n
}

// ApplyDiscount returns the discount and the discounted total of a base amount
func ApplyDiscount(baseTotal float64, profile models.DiscountProfile) (discountAmount, finalTotal float64) {
	if profile.Percentage <= 0 {
		return 0, baseTotal
	}
	discountAmount = Round2(baseTotal * profile.Percentage / 100)
	return discountAmount, baseTotal - discountAmount
}

// QuoteBooking prices every leg and applies the discount once on the sum.
// Rounding per leg would give a different total than rounding the sum.
func QuoteBooking(legs map[models.LegKind]*models.ItineraryLeg, profile models.DiscountProfile) models.FareQuote {
	quote := models.FareQuote{
		Lines:      make([]models.FareLine, 0, 2),
		Category:   profile.Category,
		Percentage: profile.Percentage,
	}
	if quote.Category == "" {
		quote.Category = models.DiscountNone
	}

	for _, kind := range []models.LegKind{models.LegOutbound, models.LegReturn} {
		leg := legs[kind]
		if leg == nil || leg.TripID == "" {
			continue
		}
		seats := len(leg.SelectedSeatNumbers)
		line := models.FareLine{
			Leg:          kind,
			TripID:       leg.TripID,
			PerSeatPrice: leg.PerSeatPrice,
			Seats:        seats,
			Subtotal:     leg.PerSeatPrice * float64(seats),
		}
		quote.Lines = append(quote.Lines, line)
		quote.BaseTotal += line.Subtotal
	}

	quote.DiscountAmount, quote.FinalTotal = ApplyDiscount(quote.BaseTotal, profile)
	quote.BaseTotal = Round2(quote.BaseTotal)
	quote.FinalTotal = Round2(quote.FinalTotal)
	return quote
}

// Round2 rounds half-up to 2 decimals. The epsilon absorbs binary
// representation error so 1.005 rounds to 1.01.
func Round2(v float64) float64 {
	if v < 0 {
		return -Round2(-v)
	}
	return math.Floor(v*100+0.5+1e-9) / 100
}

func findStop(stops []models.Stop, localityID string) (models.Stop, bool) {
	for _, s := range stops {
		if s.LocalityID == localityID {
			return s, true
		}
	}
	return models.Stop{}, false
}
