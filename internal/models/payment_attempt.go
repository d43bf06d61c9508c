package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentAttemptStatus tracks a payment attempt from hand-off to resolution
type PaymentAttemptStatus string

const (
	AttemptAwaitingPayment PaymentAttemptStatus = "awaiting_payment"
	AttemptConfirmed       PaymentAttemptStatus = "confirmed"
	AttemptCancelled       PaymentAttemptStatus = "cancelled"
	AttemptAbandoned       PaymentAttemptStatus = "abandoned"
)

// PaymentResolutionSource identifies which resumption signal resolved an attempt
type PaymentResolutionSource string

const (
	ResolvedViaDeepLink   PaymentResolutionSource = "deep_link"
	ResolvedViaForeground PaymentResolutionSource = "foreground"
)

// PaymentAttempt is one hand-off to the external payment surface
type PaymentAttempt struct {
	ID          uuid.UUID                `json:"id" db:"id"`
	UserID      string                   `json:"user_id" db:"user_id"`
	SessionID   *string                  `json:"session_id,omitempty" db:"session_id"`
	SessionURL  string                   `json:"session_url" db:"session_url"`
	Status      PaymentAttemptStatus     `json:"status" db:"status"`
	ResolvedVia *PaymentResolutionSource `json:"resolved_via,omitempty" db:"resolved_via"`
	QuotedTotal float64                  `json:"quoted_total" db:"quoted_total"`
	CreatedAt   time.Time                `json:"created_at" db:"created_at"`
	ResolvedAt  *time.Time               `json:"resolved_at,omitempty" db:"resolved_at"`
}

// NewPaymentAttempt creates an attempt awaiting payment
func NewPaymentAttempt(userID string, session PaymentSession, quotedTotal float64) *PaymentAttempt {
	attempt := &PaymentAttempt{
		ID:          uuid.New(),
		UserID:      userID,
		SessionURL:  session.SessionURL,
		Status:      AttemptAwaitingPayment,
		QuotedTotal: quotedTotal,
		CreatedAt:   time.Now(),
	}
	if session.SessionID != "" {
		sid := session.SessionID
		attempt.SessionID = &sid
	}
	return attempt
}

// MatchesSession reports whether a provider session id belongs to this attempt.
// Attempts created without a known session id match any session.
func (a *PaymentAttempt) MatchesSession(sessionID string) bool {
	if a.SessionID == nil {
		return true
	}
	return *a.SessionID == sessionID
}
