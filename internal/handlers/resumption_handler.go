package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charruabus/booking-agent/internal/middleware"
	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxNavigationWait caps the long-poll of GET /navigation
const maxNavigationWait = 30 * time.Second

// AttemptHistory looks up journaled payment attempts
type AttemptHistory interface {
	GetLatestByUser(ctx context.Context, userID string) (*models.PaymentAttempt, error)
}

// ResumptionHandler receives the host's lifecycle signals and inbound links
// and hands navigation commands back to it
type ResumptionHandler struct {
	history AttemptHistory
	logger  *logrus.Logger
}

// NewResumptionHandler creates a new ResumptionHandler. history may be nil.
func NewResumptionHandler(history AttemptHistory, logger *logrus.Logger) *ResumptionHandler {
	return &ResumptionHandler{history: history, logger: logger}
}

// DeepLinkRequest carries a link the host app was opened with
type DeepLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

// PaymentStatusResponse describes the latest payment attempt
type PaymentStatusResponse struct {
	State   services.ReconcilerState `json:"state"`
	Attempt *models.PaymentAttempt   `json:"attempt,omitempty"`
}

// Foreground reports that the host app regained focus
func (h *ResumptionHandler) Foreground(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)
	session.Reconciler.Foreground()

	h.logger.WithFields(logrus.Fields{
		"user_id": session.UserID,
		"state":   session.Reconciler.State(),
	}).Debug("Host returned to foreground")

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// DeepLink processes an inbound link. Links that are not payment returns
// are answered with handled=false.
func (h *ResumptionHandler) DeepLink(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	var req DeepLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	outcome, err := session.Reconciler.HandleDeepLink(c.Request.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Navigation drains the pending navigation commands. With ?wait=<duration>
// it blocks until a command is queued or the wait elapses.
func (h *ResumptionHandler) Navigation(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			badRequest(c, "invalid wait duration")
			return
		}
		wait = min(d, maxNavigationWait)
	}

	commands := session.Navigation.Drain()
	if len(commands) == 0 && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-session.Navigation.Pending():
			commands = session.Navigation.Drain()
		case <-timer.C:
		case <-c.Request.Context().Done():
		}
	}

	c.JSON(http.StatusOK, gin.H{"commands": commands})
}

// PaymentStatus returns the attempt being reconciled, falling back to the
// journal when this process has not seen one
func (h *ResumptionHandler) PaymentStatus(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	resp := PaymentStatusResponse{
		State:   session.Reconciler.State(),
		Attempt: session.Reconciler.Attempt(),
	}

	if resp.Attempt == nil && h.history != nil {
		attempt, err := h.history.GetLatestByUser(c.Request.Context(), session.UserID)
		if err != nil {
			h.logger.WithError(err).WithField("user_id", session.UserID).Warn("Failed to read payment journal")
		}
		resp.Attempt = attempt
	}

	c.JSON(http.StatusOK, resp)
}
