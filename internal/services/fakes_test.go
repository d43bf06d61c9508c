package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/pkg/jwt"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// testToken signs a token for userID valid for ttl; negative ttl gives an expired token
func testToken(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.Claims{
		UserID:   userID,
		Category: string(models.DiscountStudent),
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func testSession(t *testing.T, category models.DiscountCategory) *SessionProvider {
	t.Helper()
	profile := models.UserProfile{ID: "user-1", Email: "ana@example.com", Category: category}
	return NewSessionProvider(jwt.NewService("test-secret"), testToken(t, "user-1", time.Hour), profile, testLogger())
}

// fakeAPI is an in-memory remote API
type fakeAPI struct {
	mu sync.Mutex

	trips       map[string]*models.TripDetail
	tripErr     error
	settings    *models.BookingSettings
	settingsErr error
	session     *models.PaymentSession
	sessionErr  error
	confirmErr  error
	cancelErr   error
	ticket      []byte

	tripCalls int
	purchases []*models.PurchaseRequest
	confirmed []string
	cancelled []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		trips:    make(map[string]*models.TripDetail),
		settings: &models.BookingSettings{PassengerLimit: 5, StudentDiscount: 20, RetiredDiscount: 30},
		session:  &models.PaymentSession{SessionURL: "https://pay.example.com/s/abc123", SessionID: "abc123"},
	}
}

func (f *fakeAPI) putTrip(trip *models.TripDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trips[trip.ID] = trip
}

func (f *fakeAPI) setSeatStatus(tripID string, number int, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.trips[tripID].Seats {
		if f.trips[tripID].Seats[i].Number == number {
			f.trips[tripID].Seats[i].RawStatus = status
		}
	}
}

func (f *fakeAPI) GetTripDetail(_ context.Context, _ string, tripID string) (*models.TripDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tripCalls++
	if f.tripErr != nil {
		return nil, f.tripErr
	}
	trip, ok := f.trips[tripID]
	if !ok {
		return nil, &models.APIError{StatusCode: 404, Message: "trip not found"}
	}
	c := *trip
	c.Stops = append([]models.Stop(nil), trip.Stops...)
	c.Seats = append([]models.Seat(nil), trip.Seats...)
	return &c, nil
}

func (f *fakeAPI) GetBookingSettings(context.Context, string) (*models.BookingSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	s := *f.settings
	return &s, nil
}

func (f *fakeAPI) CreatePaymentSession(_ context.Context, _ string, req *models.PurchaseRequest) (*models.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases = append(f.purchases, req)
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	s := *f.session
	return &s, nil
}

func (f *fakeAPI) ConfirmPurchase(_ context.Context, _ string, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, sessionID)
	return f.confirmErr
}

func (f *fakeAPI) CancelPurchase(_ context.Context, _ string, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sessionID)
	return f.cancelErr
}

func (f *fakeAPI) DownloadTicketPDF(context.Context, string, string) ([]byte, error) {
	return f.ticket, nil
}

func (f *fakeAPI) confirmedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.confirmed...)
}

func (f *fakeAPI) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// callRecorder records navigation and payment-pending calls in order
type callRecorder struct {
	mu       sync.Mutex
	calls    []string
	attempts []*models.PaymentAttempt
}

func (r *callRecorder) Reset(route models.Route) { r.add("reset:" + string(route)) }

func (r *callRecorder) Push(route models.Route) { r.add("push:" + string(route)) }

func (r *callRecorder) OpenExternal(url string) { r.add("open:" + url) }

func (r *callRecorder) PaymentPending(attempt *models.PaymentAttempt) {
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.mu.Unlock()
	r.add("pending")
}

func (r *callRecorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// fakeBooking stands in for the orchestrator
type fakeBooking struct {
	mu         sync.Mutex
	progressed bool
	resets     int
	reloads    int
}

func (b *fakeBooking) HasProgressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progressed
}

func (b *fakeBooking) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	b.progressed = false
}

func (b *fakeBooking) ReloadSeats(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
	return nil
}

func (b *fakeBooking) counts() (resets, reloads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets, b.reloads
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token() (string, error) { return s.token, s.err }

type journalEntry struct {
	id     uuid.UUID
	status models.PaymentAttemptStatus
	via    models.PaymentResolutionSource
}

// fakeJournal records journal writes
type fakeJournal struct {
	mu       sync.Mutex
	created  []uuid.UUID
	resolved []journalEntry
}

func (j *fakeJournal) Create(_ context.Context, attempt *models.PaymentAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created = append(j.created, attempt.ID)
	return nil
}

func (j *fakeJournal) MarkResolved(_ context.Context, id uuid.UUID, status models.PaymentAttemptStatus, via models.PaymentResolutionSource) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.resolved = append(j.resolved, journalEntry{id: id, status: status, via: via})
	return nil
}

func (j *fakeJournal) Resolutions() []journalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journalEntry(nil), j.resolved...)
}

// coachTrip is a trip with four stops and eight seats, seats 2 and 5 taken
func coachTrip(id string) *models.TripDetail {
	seats := make([]models.Seat, 0, 8)
	for n := 1; n <= 8; n++ {
		status := "AVAILABLE"
		if n == 2 || n == 5 {
			status = "HELD"
		}
		seats = append(seats, models.Seat{ID: id + "-seat", Number: n, RawStatus: status})
	}
	return &models.TripDetail{
		ID:           id,
		SegmentPrice: 100,
		Stops: []models.Stop{
			{LocalityID: "mvd", Name: "Montevideo", Order: 1},
			{LocalityID: "pdd", Name: "Punta del Este", Order: 2},
			{LocalityID: "roc", Name: "Rocha", Order: 3},
			{LocalityID: "chy", Name: "Chuy", Order: 4},
		},
		Seats: seats,
	}
}
