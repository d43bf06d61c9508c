package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentGateway creates external payment sessions
type PaymentGateway interface {
	CreatePaymentSession(ctx context.Context, token string, req *models.PurchaseRequest) (*models.PaymentSession, error)
}

// PaymentPendingListener is told when control is handed to the payment surface
type PaymentPendingListener interface {
	PaymentPending(attempt *models.PaymentAttempt)
}

// seatConflictPattern matches "reservar 1 de 3 asientos" / "reserved 1 of 3 seats"
var seatConflictPattern = regexp.MustCompile(`(?i)(\d+)\s+(?:de|of)\s+(\d+)\s+(?:asientos|seats)`)

// PaymentSessionService turns a finalized booking into an external payment
// session and hands control to the payment surface
type PaymentSessionService struct {
	gateway  PaymentGateway
	nav      Navigator
	listener PaymentPendingListener
	logger   *logrus.Logger
}

// NewPaymentSessionService creates the payment bridge of one user
func NewPaymentSessionService(gateway PaymentGateway, nav Navigator, listener PaymentPendingListener, logger *logrus.Logger) *PaymentSessionService {
	return &PaymentSessionService{
		gateway:  gateway,
		nav:      nav,
		listener: listener,
		logger:   logger,
	}
}

// CreatePaymentSession requests a payment session for the purchase. On
// success the reconciler is told payment is pending before the payment page
// is opened, so a later resumption always finds the attempt.
func (s *PaymentSessionService) CreatePaymentSession(ctx context.Context, token string, req *models.PurchaseRequest) (*models.PaymentAttempt, error) {
	session, err := s.gateway.CreatePaymentSession(ctx, token, req)
	if err != nil {
		return nil, s.ClassifyFailure(err, req)
	}

	attempt := models.NewPaymentAttempt(req.UserID, *session, req.QuotedTotal)

	s.logger.WithFields(logrus.Fields{
		"user_id":      req.UserID,
		"attempt_id":   attempt.ID,
		"outbound":     req.OutboundTripID,
		"return":       req.ReturnTripID != nil,
		"quoted_total": req.QuotedTotal,
	}).Info("Payment session created, handing off to payment page")

	s.listener.PaymentPending(attempt)
	s.nav.OpenExternal(session.SessionURL)

	return attempt, nil
}

// ClassifyFailure maps a session creation failure onto the error taxonomy.
// Seat conflicts are an expected race with other buyers and are not logged
// as errors; expired sessions pass through untouched.
func (s *PaymentSessionService) ClassifyFailure(err error, req *models.PurchaseRequest) error {
	if errors.Is(err, models.ErrSessionExpired) {
		return err
	}

	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		if conflict := ParseSeatConflict(apiErr.Message); conflict != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id":     req.UserID,
				"requested":   conflict.Requested,
				"reserved":    conflict.Reserved,
				"unavailable": conflict.Unavailable,
			}).Info("Seats taken by another purchase")
			return conflict
		}
	}

	s.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to create payment session")
	return err
}

// ParseSeatConflict recognises a partial reservation message, nil otherwise
func ParseSeatConflict(message string) *models.SeatConflictError {
	m := seatConflictPattern.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	reserved, err1 := strconv.Atoi(m[1])
	requested, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || requested <= 0 || reserved >= requested {
		return nil
	}
	return &models.SeatConflictError{
		Requested:   requested,
		Reserved:    reserved,
		Unavailable: requested - reserved,
		Message:     message,
	}
}
