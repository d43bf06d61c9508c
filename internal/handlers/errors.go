package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	Code             string `json:"code,omitempty"`
	UnavailableCount int    `json:"unavailable_count,omitempty"`
}

// respondError maps the booking error taxonomy onto HTTP responses
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var conflict *models.SeatConflictError
	var apiErr *models.APIError

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:            "seat_conflict",
			Message:          conflict.Message,
			Code:             "SEAT_CONFLICT",
			UnavailableCount: conflict.Unavailable,
		})
	case errors.Is(err, models.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "session_expired",
			Message: "Session expired. Please sign in again.",
			Code:    "SESSION_EXPIRED",
		})
	case errors.Is(err, models.ErrSeatLimitExceeded):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "seat_limit_exceeded",
			Message: err.Error(),
			Code:    "SEAT_LIMIT_EXCEEDED",
		})
	case errors.Is(err, models.ErrIncompleteSelection):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "incomplete_selection",
			Message: err.Error(),
			Code:    "INCOMPLETE_SELECTION",
		})
	case errors.Is(err, models.ErrNoBookingInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "no_booking_in_progress",
			Message: "Start a booking first",
			Code:    "NO_BOOKING_IN_PROGRESS",
		})
	case errors.Is(err, models.ErrInvalidBookingState):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_booking_state",
			Message: err.Error(),
			Code:    "INVALID_BOOKING_STATE",
		})
	case errors.As(err, &apiErr):
		logger.WithError(err).WithField("upstream_status", apiErr.StatusCode).Warn("CharruaBus API rejected the request")
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: apiErr.Error(),
			Code:    "UPSTREAM_ERROR",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error:   "timeout",
			Message: "The request did not complete in time",
			Code:    "TIMEOUT",
		})
	default:
		logger.WithError(err).Error("Request failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: err.Error(),
			Code:    "UPSTREAM_ERROR",
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
		Code:    "INVALID_REQUEST",
	})
}
