package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the host-facing API on an authenticated group
func RegisterRoutes(protected *gin.RouterGroup, booking *BookingHandler, resumption *ResumptionHandler) {
	bookingRoutes := protected.Group("/booking")
	{
		bookingRoutes.POST("/start", booking.Start)
		bookingRoutes.GET("", booking.Get)
		bookingRoutes.POST("/trips", booking.ChooseTrip)
		bookingRoutes.POST("/seats/:number/toggle", booking.ToggleSeat)
		bookingRoutes.POST("/seats/confirm", booking.ConfirmSeats)
		bookingRoutes.POST("/seats/reload", booking.ReloadSeats)
		bookingRoutes.POST("/back", booking.Back)
		bookingRoutes.POST("/reset", booking.Reset)
		bookingRoutes.GET("/quote", booking.Quote)
		bookingRoutes.GET("/summary.pdf", booking.SummaryPDF)
		bookingRoutes.POST("/checkout", booking.Checkout)
	}

	protected.GET("/tickets/:purchase_id/pdf", booking.TicketPDF)

	protected.POST("/lifecycle/foreground", resumption.Foreground)
	protected.POST("/deeplinks", resumption.DeepLink)
	protected.GET("/navigation", resumption.Navigation)
	protected.GET("/payments/current", resumption.PaymentStatus)
}
