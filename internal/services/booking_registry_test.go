package services

import (
	"context"
	"testing"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(api *fakeAPI, journal PaymentJournal) *BookingRegistry {
	config := RegistryConfig{
		Orchestrator: OrchestratorConfig{DefaultPassengerLimit: 5},
		Reconciler: ReconcilerConfig{
			ForegroundGrace: 20 * time.Millisecond,
			NavigationDelay: time.Millisecond,
			CallTimeout:     time.Second,
		},
	}
	return NewBookingRegistry(context.Background(), api, jwt.NewService("test-secret"), journal, NewDeepLinkParser("charruabus", "pago"), config, testLogger())
}

func TestBookingRegistry_AcquireReusesSession(t *testing.T) {
	registry := newTestRegistry(newFakeAPI(), nil)
	defer registry.Close()

	profile := models.UserProfile{ID: "user-1"}
	first := registry.Acquire(testToken(t, "user-1", time.Hour), profile)
	first.Session.MarkExpired()

	second := registry.Acquire(testToken(t, "user-1", time.Hour), profile)
	assert.Same(t, first, second)
	assert.False(t, second.Session.IsExpired(), "acquire renews the credential")

	other := registry.Acquire(testToken(t, "user-2", time.Hour), models.UserProfile{ID: "user-2"})
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, registry.Len())

	registry.Release("user-2")
	_, ok := registry.Get("user-2")
	assert.False(t, ok)
	assert.Equal(t, 1, registry.Len())
}

// a whole payment round trip through the wired session
func TestBookingRegistry_PaymentFlow(t *testing.T) {
	api := newFakeAPI()
	api.putTrip(coachTrip("t-out"))
	journal := &fakeJournal{}
	registry := newTestRegistry(api, journal)
	defer registry.Close()

	ctx := context.Background()
	s := registry.Acquire(testToken(t, "user-1", time.Hour), models.UserProfile{ID: "user-1", Category: models.DiscountRetired})

	_, err := s.Orchestrator.Start(ctx, models.BookingRequest{TripType: models.TripTypeOneWay, OriginLocalityID: "mvd", DestinationLocalityID: "pdd", Passengers: 1})
	require.NoError(t, err)
	_, err = s.Orchestrator.ChooseTrip(ctx, "t-out")
	require.NoError(t, err)
	_, err = s.Orchestrator.ToggleSeat(4)
	require.NoError(t, err)
	_, err = s.Orchestrator.ConfirmSeats()
	require.NoError(t, err)

	attempt, err := s.Orchestrator.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70.0, attempt.QuotedTotal)

	commands := s.Navigation.Drain()
	require.Len(t, commands, 1)
	assert.Equal(t, models.NavigationOpenExternal, commands[0].Kind)

	outcome, err := s.Reconciler.HandleDeepLink(ctx, "charruabus://pago/exitoso?session_id=abc123")
	require.NoError(t, err)
	assert.Equal(t, models.RouteHome, outcome.Route)
	require.NotNil(t, outcome.AttemptID)
	assert.Equal(t, attempt.ID, *outcome.AttemptID)

	assert.Equal(t, []string{"abc123"}, api.confirmedIDs())
	assert.False(t, s.Orchestrator.HasProgressed())

	commands = s.Navigation.Drain()
	require.Len(t, commands, 1)
	assert.Equal(t, models.RouteHome, commands[0].Route)
	assert.Len(t, journal.Resolutions(), 1)
}
