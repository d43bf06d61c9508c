package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	orchestrator *BookingOrchestrator
	api          *fakeAPI
	session      *SessionProvider
	rec          *callRecorder
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	api := newFakeAPI()
	api.putTrip(coachTrip("t-out"))
	api.putTrip(coachTrip("t-ret"))

	session := testSession(t, models.DiscountStudent)
	o := NewBookingOrchestrator(api, session, OrchestratorConfig{DefaultPassengerLimit: 4}, testLogger())
	rec := &callRecorder{}
	o.SetPaymentStarter(NewPaymentSessionService(api, rec, rec, testLogger()))

	return &orchestratorFixture{orchestrator: o, api: api, session: session, rec: rec}
}

func bookingRequest(tripType models.TripType, passengers int) models.BookingRequest {
	return models.BookingRequest{
		TripType:              tripType,
		OriginLocalityID:      "mvd",
		DestinationLocalityID: "chy",
		Passengers:            passengers,
	}
}

// pickSeats chooses the trip of the current leg, toggles the seats and confirms them
func (f *orchestratorFixture) pickSeats(t *testing.T, tripID string, seats ...int) BookingSnapshot {
	t.Helper()
	ctx := context.Background()
	_, err := f.orchestrator.ChooseTrip(ctx, tripID)
	require.NoError(t, err)
	for _, n := range seats {
		_, err = f.orchestrator.ToggleSeat(n)
		require.NoError(t, err)
	}
	snap, err := f.orchestrator.ConfirmSeats()
	require.NoError(t, err)
	return snap
}

func TestOrchestrator_RequiresStart(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orchestrator.ChooseTrip(context.Background(), "t-out")
	assert.ErrorIs(t, err, models.ErrNoBookingInProgress)
	_, err = f.orchestrator.ToggleSeat(1)
	assert.ErrorIs(t, err, models.ErrNoBookingInProgress)
	_, err = f.orchestrator.Checkout(context.Background())
	assert.ErrorIs(t, err, models.ErrNoBookingInProgress)
	_, err = f.orchestrator.Snapshot()
	assert.ErrorIs(t, err, models.ErrNoBookingInProgress)
	assert.False(t, f.orchestrator.HasProgressed())
	assert.NoError(t, f.orchestrator.ReloadSeats(context.Background()))
}

func TestOrchestrator_StartResolvesDiscount(t *testing.T) {
	f := newOrchestratorFixture(t)

	snap, err := f.orchestrator.Start(context.Background(), bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)

	assert.Equal(t, models.InitialStep, snap.State.CurrentStep)
	assert.Equal(t, 5, snap.PassengerLimit)
	assert.Equal(t, models.DiscountStudent, snap.Discount.Category)
	assert.Equal(t, 20.0, snap.Discount.Percentage)
}

func TestOrchestrator_StartDegradesWithoutSettings(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.api.settingsErr = &models.APIError{StatusCode: 503, Message: "unavailable"}

	snap, err := f.orchestrator.Start(context.Background(), bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)

	assert.Equal(t, 4, snap.PassengerLimit)
	assert.Equal(t, models.DiscountNone, snap.Discount.Category)
	assert.Zero(t, snap.Discount.Percentage)

	_, err = f.orchestrator.Start(context.Background(), bookingRequest(models.TripTypeOneWay, 5))
	assert.ErrorIs(t, err, models.ErrSeatLimitExceeded)
}

func TestOrchestrator_StartSessionExpired(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.api.settingsErr = fmt.Errorf("failed to get booking settings: %w", models.ErrSessionExpired)

	_, err := f.orchestrator.Start(context.Background(), bookingRequest(models.TripTypeOneWay, 1))
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.True(t, f.session.IsExpired())
}

func TestOrchestrator_StartValidatesRequest(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orchestrator.Start(context.Background(), bookingRequest(models.TripTypeOneWay, 0))
	assert.ErrorIs(t, err, models.ErrIncompleteSelection)

	req := bookingRequest(models.TripTypeOneWay, 1)
	req.DestinationLocalityID = req.OriginLocalityID
	_, err = f.orchestrator.Start(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidBookingState)
}

func TestOrchestrator_OneWayCheckout(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)

	snap, err := f.orchestrator.ChooseTrip(ctx, "t-out")
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectSeatOutbound, snap.State.CurrentStep)
	require.Len(t, snap.SeatMap, 8)
	assert.Equal(t, 300.0, snap.SeatMap[0].Price)
	assert.Equal(t, "Montevideo", snap.State.OutboundLeg.OriginStop.Name)

	_, err = f.orchestrator.ToggleSeat(1)
	require.NoError(t, err)
	snap, err = f.orchestrator.ToggleSeat(3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, snap.SelectedSeats)
	assert.Equal(t, models.SeatLocalSelected, snap.SeatMap[0].LocalState)
	// working selection is priced before it is confirmed
	assert.Equal(t, 600.0, snap.Quote.BaseTotal)
	assert.Equal(t, 120.0, snap.Quote.DiscountAmount)
	assert.Equal(t, 480.0, snap.Quote.FinalTotal)

	_, err = f.orchestrator.ToggleSeat(4)
	assert.ErrorIs(t, err, models.ErrSeatLimitExceeded)

	snap, err = f.orchestrator.ConfirmSeats()
	require.NoError(t, err)
	assert.Equal(t, models.StepFinalize, snap.State.CurrentStep)

	attempt, err := f.orchestrator.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 480.0, attempt.QuotedTotal)

	require.Len(t, f.api.purchases, 1)
	purchase := f.api.purchases[0]
	assert.Equal(t, "user-1", purchase.UserID)
	assert.Equal(t, "t-out", purchase.OutboundTripID)
	assert.Equal(t, []int{1, 3}, purchase.OutboundSeats)
	assert.Equal(t, "mvd", purchase.OutboundOriginID)
	assert.Equal(t, "chy", purchase.OutboundDestinationID)
	assert.Nil(t, purchase.ReturnTripID)
	assert.Equal(t, "student", purchase.DiscountCategory)

	assert.Equal(t, []string{"pending", "open:https://pay.example.com/s/abc123"}, f.rec.Calls())
	assert.True(t, f.orchestrator.HasProgressed())
}

func TestOrchestrator_RoundTripPricesBothLegs(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeRoundTrip, 1))
	require.NoError(t, err)

	snap := f.pickSeats(t, "t-out", 1)
	assert.Equal(t, models.StepSelectTripReturn, snap.State.CurrentStep)

	snap = f.pickSeats(t, "t-ret", 4)
	assert.Equal(t, models.StepFinalize, snap.State.CurrentStep)
	assert.Equal(t, "chy", snap.State.ReturnLeg.OriginStop.LocalityID)
	assert.Equal(t, "mvd", snap.State.ReturnLeg.DestinationStop.LocalityID)

	quote, err := f.orchestrator.Quote()
	require.NoError(t, err)
	require.Len(t, quote.Lines, 2)
	assert.Equal(t, 600.0, quote.BaseTotal)
	assert.Equal(t, 480.0, quote.FinalTotal)

	_, err = f.orchestrator.Checkout(ctx)
	require.NoError(t, err)
	purchase := f.api.purchases[0]
	require.NotNil(t, purchase.ReturnTripID)
	assert.Equal(t, "t-ret", *purchase.ReturnTripID)
	assert.Equal(t, []int{4}, purchase.ReturnSeats)
	assert.Equal(t, "chy", *purchase.ReturnOriginID)
	assert.Equal(t, "mvd", *purchase.ReturnDestinationID)
}

func TestOrchestrator_ConfirmRequiresAllSeats(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)
	_, err = f.orchestrator.ChooseTrip(ctx, "t-out")
	require.NoError(t, err)
	_, err = f.orchestrator.ToggleSeat(1)
	require.NoError(t, err)

	_, err = f.orchestrator.ConfirmSeats()
	assert.ErrorIs(t, err, models.ErrIncompleteSelection)

	_, err = f.orchestrator.Checkout(ctx)
	assert.ErrorIs(t, err, models.ErrIncompleteSelection)
	assert.Empty(t, f.api.purchases)
}

func TestOrchestrator_OccupiedSeatIsNoop(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 1))
	require.NoError(t, err)
	_, err = f.orchestrator.ChooseTrip(ctx, "t-out")
	require.NoError(t, err)

	snap, err := f.orchestrator.ToggleSeat(2)
	require.NoError(t, err)
	assert.Empty(t, snap.SelectedSeats)
}

func TestOrchestrator_SeatConflictReopensLosingLeg(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeRoundTrip, 2))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 1, 3)
	f.pickSeats(t, "t-ret", 1, 3)

	f.api.sessionErr = &models.APIError{StatusCode: 409, Message: "Solo se pudieron reservar 1 de 2 asientos"}
	f.api.setSeatStatus("t-ret", 3, "HELD")

	_, err = f.orchestrator.Checkout(ctx)
	var conflict *models.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Unavailable)

	snap, err := f.orchestrator.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectSeatReturn, snap.State.CurrentStep)
	assert.Empty(t, snap.State.ReturnLeg.SelectedSeatNumbers)
	assert.Equal(t, []int{1, 3}, snap.State.OutboundLeg.SelectedSeatNumbers)
	assert.Empty(t, snap.SelectedSeats)
	assert.Equal(t, models.SeatLocalOccupied, snap.SeatMap[2].LocalState)

	// re-pick and pay
	f.api.sessionErr = nil
	_, err = f.orchestrator.ToggleSeat(1)
	require.NoError(t, err)
	_, err = f.orchestrator.ToggleSeat(4)
	require.NoError(t, err)
	_, err = f.orchestrator.ConfirmSeats()
	require.NoError(t, err)
	_, err = f.orchestrator.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, f.api.purchases[len(f.api.purchases)-1].ReturnSeats)
}

func TestOrchestrator_SeatConflictOnOutboundDropsReturn(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeRoundTrip, 1))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 1)
	f.pickSeats(t, "t-ret", 1)

	f.api.sessionErr = &models.APIError{StatusCode: 409, Message: "reserved 0 of 1 seats"}
	f.api.setSeatStatus("t-out", 1, "CONFIRMED")

	_, err = f.orchestrator.Checkout(ctx)
	var conflict *models.SeatConflictError
	require.ErrorAs(t, err, &conflict)

	snap, err := f.orchestrator.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectSeatOutbound, snap.State.CurrentStep)
	assert.Nil(t, snap.State.ReturnLeg)
	assert.Empty(t, snap.State.OutboundLeg.SelectedSeatNumbers)
	assert.Equal(t, models.SeatLocalOccupied, snap.SeatMap[0].LocalState)
}

func TestOrchestrator_SeatConflictReloadExpiresSession(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 1, 3)

	f.api.sessionErr = &models.APIError{StatusCode: 409, Message: "Solo se pudieron reservar 1 de 2 asientos"}
	f.api.tripErr = models.ErrSessionExpired

	_, err = f.orchestrator.Checkout(ctx)
	var conflict *models.SeatConflictError
	require.ErrorAs(t, err, &conflict)

	assert.True(t, f.session.IsExpired())
	select {
	case <-f.session.Expired():
	default:
		t.Fatal("expected the session expiry signal")
	}
}

func TestOrchestrator_GenericFailureKeepsSelection(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 1, 3)

	f.api.sessionErr = &models.APIError{StatusCode: 500, Message: "boom"}
	_, err = f.orchestrator.Checkout(ctx)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())

	snap, err := f.orchestrator.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectSeatOutbound, snap.State.CurrentStep)
	assert.Equal(t, []int{1, 3}, snap.SelectedSeats)

	// retry without re-picking
	f.api.sessionErr = nil
	_, err = f.orchestrator.ConfirmSeats()
	require.NoError(t, err)
	_, err = f.orchestrator.Checkout(ctx)
	require.NoError(t, err)
}

func TestOrchestrator_CheckoutSessionExpired(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 1))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 1)

	f.api.sessionErr = fmt.Errorf("%w: unauthorized", models.ErrSessionExpired)
	_, err = f.orchestrator.Checkout(ctx)
	assert.True(t, errors.Is(err, models.ErrSessionExpired))
	assert.True(t, f.session.IsExpired())

	_, err = f.orchestrator.Checkout(ctx)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestOrchestrator_ReloadDropsTakenSeats(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 2))
	require.NoError(t, err)
	_, err = f.orchestrator.ChooseTrip(ctx, "t-out")
	require.NoError(t, err)
	_, err = f.orchestrator.ToggleSeat(1)
	require.NoError(t, err)
	_, err = f.orchestrator.ToggleSeat(3)
	require.NoError(t, err)

	f.api.setSeatStatus("t-out", 3, "HELD")
	require.NoError(t, f.orchestrator.ReloadSeats(ctx))

	snap, err := f.orchestrator.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, snap.SelectedSeats)
	assert.Equal(t, models.SeatLocalOccupied, snap.SeatMap[2].LocalState)
}

func TestOrchestrator_BackRestoresSelection(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeRoundTrip, 1))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 6)

	snap, err := f.orchestrator.Back()
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectSeatOutbound, snap.State.CurrentStep)
	assert.Equal(t, []int{6}, snap.SelectedSeats)

	snap, err = f.orchestrator.Back()
	require.NoError(t, err)
	assert.Equal(t, models.StepSelectTripOutbound, snap.State.CurrentStep)
	assert.Empty(t, snap.SeatMap)
	assert.False(t, f.orchestrator.HasProgressed())
}

func TestOrchestrator_Reset(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 1))
	require.NoError(t, err)
	f.pickSeats(t, "t-out", 1)
	require.True(t, f.orchestrator.HasProgressed())

	f.orchestrator.Reset()

	snap, err := f.orchestrator.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, models.InitialStep, snap.State.CurrentStep)
	assert.Nil(t, snap.State.OutboundLeg)
	assert.Empty(t, snap.Quote.Lines)
	assert.False(t, f.orchestrator.HasProgressed())
}

func TestOrchestrator_UnknownStopsPriceOneSegment(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	req := bookingRequest(models.TripTypeOneWay, 1)
	req.OriginLocalityID = "col"
	_, err := f.orchestrator.Start(ctx, req)
	require.NoError(t, err)

	snap, err := f.orchestrator.ChooseTrip(ctx, "t-out")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.State.OutboundLeg.PerSeatPrice)
	assert.Equal(t, "col", snap.State.OutboundLeg.OriginStop.LocalityID)
}

func TestOrchestrator_ChooseTripFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.Start(ctx, bookingRequest(models.TripTypeOneWay, 1))
	require.NoError(t, err)

	_, err = f.orchestrator.ChooseTrip(ctx, "missing")
	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)

	snap, err := f.orchestrator.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, models.InitialStep, snap.State.CurrentStep)
}
