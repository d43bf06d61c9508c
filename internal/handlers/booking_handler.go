package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charruabus/booking-agent/internal/middleware"
	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BookingHandler exposes the booking flow of the authenticated user
type BookingHandler struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{logger: logger, now: time.Now}
}

// ChooseTripRequest selects the trip of the current leg
type ChooseTripRequest struct {
	TripID string `json:"trip_id" binding:"required"`
}

// CheckoutResponse is returned once the payment page is ready
type CheckoutResponse struct {
	SessionURL string `json:"session_url"`
	AttemptID  string `json:"attempt_id"`
}

// ============================================================================
// POST /api/v1/booking/start
// ============================================================================

// Start begins a new booking attempt, discarding any previous one
func (h *BookingHandler) Start(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	var req models.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	snap, err := session.Orchestrator.Start(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// Get returns the current booking snapshot
func (h *BookingHandler) Get(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	snap, err := session.Orchestrator.Snapshot()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ChooseTrip selects the trip for the leg being booked
func (h *BookingHandler) ChooseTrip(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	var req ChooseTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request: "+err.Error())
		return
	}

	snap, err := session.Orchestrator.ChooseTrip(c.Request.Context(), strings.TrimSpace(req.TripID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ToggleSeat selects or deselects one seat of the current leg
func (h *BookingHandler) ToggleSeat(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		badRequest(c, "invalid seat number")
		return
	}

	snap, err := session.Orchestrator.ToggleSeat(number)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ConfirmSeats records the seats of the current leg and advances
func (h *BookingHandler) ConfirmSeats(c *gin.Context) {
	h.respondSnapshot(c, middleware.MustGetBookingSession(c).Orchestrator.ConfirmSeats)
}

// Back moves the booking one step back
func (h *BookingHandler) Back(c *gin.Context) {
	h.respondSnapshot(c, middleware.MustGetBookingSession(c).Orchestrator.Back)
}

// Reset returns the booking to its first step
func (h *BookingHandler) Reset(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)
	session.Orchestrator.Reset()
	h.respondSnapshot(c, session.Orchestrator.Snapshot)
}

// ReloadSeats refreshes the seat maps of the chosen trips
func (h *BookingHandler) ReloadSeats(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	if err := session.Orchestrator.ReloadSeats(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondSnapshot(c, session.Orchestrator.Snapshot)
}

// Quote prices the booking as selected so far
func (h *BookingHandler) Quote(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	quote, err := session.Orchestrator.Quote()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// SummaryPDF renders the booking as selected so far
func (h *BookingHandler) SummaryPDF(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	snap, err := session.Orchestrator.Snapshot()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	data, filename, err := services.BuildBookingSummaryPDF(snap, session.Session.Profile(), h.now())
	if err != nil {
		h.logger.WithError(err).WithField("user_id", session.UserID).Error("Failed to render booking summary")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "pdf_failed",
			Message: "Could not render the booking summary",
			Code:    "PDF_FAILED",
		})
		return
	}
	servePDF(c, data, filename)
}

// ============================================================================
// POST /api/v1/booking/checkout
// ============================================================================

// Checkout finalizes the booking and opens the payment page. The open
// command is also queued for the host's navigation drain.
func (h *BookingHandler) Checkout(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	attempt, err := session.Orchestrator.Checkout(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		SessionURL: attempt.SessionURL,
		AttemptID:  attempt.ID.String(),
	})
}

// TicketPDF proxies the ticket of a finished purchase
func (h *BookingHandler) TicketPDF(c *gin.Context) {
	session := middleware.MustGetBookingSession(c)

	purchaseID := strings.TrimSpace(c.Param("purchase_id"))
	if purchaseID == "" {
		badRequest(c, "purchase_id is required")
		return
	}

	data, err := session.Orchestrator.TicketPDF(c.Request.Context(), purchaseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	servePDF(c, data, fmt.Sprintf("BOLETO_%s.pdf", purchaseID))
}

func (h *BookingHandler) respondSnapshot(c *gin.Context, op func() (services.BookingSnapshot, error)) {
	snap, err := op()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func servePDF(c *gin.Context, data []byte, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}
