package services

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/phpdave11/gofpdf"
)

// BuildBookingSummaryPDF renders the booking as priced so far, for the
// traveler to review or share before paying. Returns the document and a
// suggested file name.
func BuildBookingSummaryPDF(snap BookingSnapshot, user models.UserProfile, now time.Time) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Resumen de reserva", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "RESUMEN DE RESERVA")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	header := []string{
		fmt.Sprintf("Pasajero    : %s", safeText(user.Email, "-")),
		fmt.Sprintf("Viaje       : %s", tripTypeLabel(snap.State.TripType)),
		fmt.Sprintf("Pasajeros   : %d", snap.State.Passengers),
		fmt.Sprintf("Emitido     : %s", now.Format("2006-01-02 15:04")),
	}
	for _, s := range header {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.Ln(4)

	writeLeg(pdf, "Ida", snap.State.OutboundLeg)
	if snap.State.TripType == models.TripTypeRoundTrip {
		writeLeg(pdf, "Vuelta", snap.State.ReturnLeg)
	}

	quote := snap.Quote
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Importe:")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, line := range quote.Lines {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %d x %s = %s", legLabel(line.Leg), line.Seats, formatPesos(line.PerSeatPrice), formatPesos(line.Subtotal)))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, "Subtotal: "+formatPesos(quote.BaseTotal))
	pdf.Ln(6)
	if quote.DiscountAmount > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Descuento %s (%s%%): -%s", quote.Category, strconv.FormatFloat(quote.Percentage, 'f', -1, 64), formatPesos(quote.DiscountAmount)))
		pdf.Ln(6)
	}
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Total: "+formatPesos(quote.FinalTotal))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Este resumen no es un pasaje. Los asientos se reservan recien al completar el pago.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("RESUMEN_%s_%s.pdf", safeFilenamePart(user.ID), now.Format("20060102_1504"))
	return buf.Bytes(), filename, nil
}

func writeLeg(pdf *gofpdf.Fpdf, title string, leg *models.ItineraryLeg) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, title+":")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	if leg == nil || leg.TripID == "" {
		pdf.Cell(0, 6, "Sin seleccionar")
		pdf.Ln(10)
		return
	}

	seats := make([]string, 0, len(leg.SelectedSeatNumbers))
	for _, n := range leg.SelectedSeatNumbers {
		seats = append(seats, strconv.Itoa(n))
	}

	lines := []string{
		fmt.Sprintf("Recorrido : %s -> %s", stopLabel(leg.OriginStop), stopLabel(leg.DestinationStop)),
		fmt.Sprintf("Salida    : %s", departureLabel(leg.OriginStop.ScheduledTime)),
		fmt.Sprintf("Servicio  : %s", leg.TripID),
		fmt.Sprintf("Asientos  : %s", safeText(strings.Join(seats, ", "), "-")),
		fmt.Sprintf("Por asiento: %s", formatPesos(leg.PerSeatPrice)),
	}
	for _, s := range lines {
		pdf.Cell(0, 6, s)
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func stopLabel(stop models.Stop) string {
	return safeText(stop.Name, safeText(stop.LocalityID, "-"))
}

func departureLabel(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func tripTypeLabel(t models.TripType) string {
	if t == models.TripTypeRoundTrip {
		return "Ida y vuelta"
	}
	return "Solo ida"
}

func legLabel(kind models.LegKind) string {
	if kind == models.LegReturn {
		return "Vuelta"
	}
	return "Ida"
}

func safeText(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "reserva"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// formatPesos renders an amount as "$ 1.234,50"
func formatPesos(v float64) string {
	v = Round2(v)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int64(v*100 + 0.5)
	whole := strconv.FormatInt(cents/100, 10)

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s$ %s,%02d", sign, grouped.String(), cents%100)
}
