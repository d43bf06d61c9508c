package models

// DiscountCategory is the traveler category a discount is granted for
type DiscountCategory string

const (
	DiscountNone    DiscountCategory = "none"
	DiscountStudent DiscountCategory = "student"
	DiscountRetired DiscountCategory = "retired"
)

// ParseDiscountCategory maps a claim value to a category, defaulting to none
func ParseDiscountCategory(v string) DiscountCategory {
	switch DiscountCategory(v) {
	case DiscountStudent:
		return DiscountStudent
	case DiscountRetired:
		return DiscountRetired
	default:
		return DiscountNone
	}
}

// UserProfile is the authenticated traveler the booking is made for
type UserProfile struct {
	ID       string           `json:"id"`
	Email    string           `json:"email,omitempty"`
	Category DiscountCategory `json:"category"`
}

// DiscountProfile is the discount resolved for one booking attempt
type DiscountProfile struct {
	Category   DiscountCategory `json:"category"`
	Percentage float64          `json:"percentage"`
}

// BookingSettings is the remote configuration snapshot used by one attempt
type BookingSettings struct {
	PassengerLimit  int     `json:"passenger_limit"`
	StudentDiscount float64 `json:"student_discount"`
	RetiredDiscount float64 `json:"retired_discount"`
}

// ProfileFor resolves the discount profile of a category
func (s BookingSettings) ProfileFor(category DiscountCategory) DiscountProfile {
	switch category {
	case DiscountStudent:
		return DiscountProfile{Category: category, Percentage: s.StudentDiscount}
	case DiscountRetired:
		return DiscountProfile{Category: category, Percentage: s.RetiredDiscount}
	default:
		return DiscountProfile{Category: DiscountNone}
	}
}
