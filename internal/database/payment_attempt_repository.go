package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const paymentAttemptsDDL = `
CREATE TABLE IF NOT EXISTS payment_attempts (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	session_id TEXT,
	session_url TEXT NOT NULL,
	status TEXT NOT NULL,
	resolved_via TEXT,
	quoted_total NUMERIC(12,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_payment_attempts_user ON payment_attempts (user_id, created_at DESC);
`

// PaymentAttemptRepository journals hand-offs to the payment page and how
// each one was resolved
type PaymentAttemptRepository struct {
	db     DB
	logger *logrus.Logger
}

// NewPaymentAttemptRepository creates a new payment attempt repository
func NewPaymentAttemptRepository(db DB, logger *logrus.Logger) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the payment_attempts table when missing
func (r *PaymentAttemptRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, paymentAttemptsDDL); err != nil {
		return fmt.Errorf("failed to create payment_attempts table: %w", err)
	}
	return nil
}

// Create records a new attempt awaiting payment
func (r *PaymentAttemptRepository) Create(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt == nil {
		return fmt.Errorf("payment attempt cannot be nil")
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_attempts (
			id, user_id, session_id, session_url,
			status, resolved_via, quoted_total,
			created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID, attempt.UserID, attempt.SessionID, attempt.SessionURL,
		attempt.Status, attempt.ResolvedVia, attempt.QuotedTotal,
		attempt.CreatedAt, attempt.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"user_id":    attempt.UserID,
	}).Debug("Payment attempt journaled")

	return nil
}

// MarkResolved records how an attempt ended. Attempts still awaiting payment
// take any resolution; an abandoned attempt is only overwritten by a deep
// link, which carries the provider's actual result.
func (r *PaymentAttemptRepository) MarkResolved(ctx context.Context, id uuid.UUID, status models.PaymentAttemptStatus, via models.PaymentResolutionSource) error {
	query := `
		UPDATE payment_attempts
		SET status = $2, resolved_via = $3, resolved_at = $4
		WHERE id = $1 AND status IN ($5, $6)`

	overwritable := models.AttemptAwaitingPayment
	if via == models.ResolvedViaDeepLink {
		overwritable = models.AttemptAbandoned
	}

	result, err := r.db.ExecContext(ctx, query, id, status, via, time.Now(), models.AttemptAwaitingPayment, overwritable)
	if err != nil {
		return fmt.Errorf("failed to resolve payment attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve payment attempt: %w", err)
	}
	if rows == 0 {
		r.logger.WithFields(logrus.Fields{
			"attempt_id": id,
			"status":     status,
		}).Warn("Payment attempt already resolved or unknown")
	}

	return nil
}

// GetLatestByUser returns the user's most recent attempt, nil when there is none
func (r *PaymentAttemptRepository) GetLatestByUser(ctx context.Context, userID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	query := `
		SELECT id, user_id, session_id, session_url, status, resolved_via,
			quoted_total, created_at, resolved_at
		FROM payment_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &attempt, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment attempt: %w", err)
	}

	return &attempt, nil
}
