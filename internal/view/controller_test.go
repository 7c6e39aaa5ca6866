package view

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-web/internal/backend"
	"room-web/internal/domain"
	"room-web/internal/testutil"
)

// stubSessions resolves every token to the same result.
type stubSessions struct {
	sess  *domain.Session
	err   error
	delay time.Duration
}

func (s stubSessions) CurrentUser(ctx context.Context, token string) (*domain.Session, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if token == "" {
		return nil, nil
	}
	return s.sess, s.err
}

func TestListings_Ready(t *testing.T) {
	listings := &testutil.MockListingService{Listings: testutil.NewTestListings(2)}
	c := NewController(stubSessions{}, listings)

	page := c.Listings(context.Background(), "", true)

	assert.Equal(t, PhaseReady, page.Phase)
	assert.Equal(t, 2, page.Count())
	assert.False(t, page.CanCreate())
	assert.False(t, page.ShowForm, "anonymous visitors never get the create form")
	assert.Nil(t, page.Form)
}

func TestListings_EmptyState(t *testing.T) {
	c := NewController(stubSessions{}, &testutil.MockListingService{})

	page := c.Listings(context.Background(), "", false)

	assert.Equal(t, PhaseReady, page.Phase)
	assert.True(t, page.Empty())
	assert.Equal(t, "Aucun logement disponible", page.EmptyMessage())
}

func TestListings_ServerErrorCarriesReason(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"connection pool exhausted"}`))
	}))
	defer api.Close()

	client, err := backend.NewListingsClient(api.URL, time.Second)
	require.NoError(t, err)

	page := NewController(stubSessions{}, client).Listings(context.Background(), "", false)

	assert.Equal(t, PhaseError, page.Phase)
	assert.False(t, page.Loading())
	assert.Contains(t, page.Error, "connection pool exhausted")
	assert.Contains(t, page.Error, "500")
}

func TestListings_SessionUnavailable(t *testing.T) {
	listings := &testutil.MockListingService{Listings: testutil.NewTestListings(1)}
	c := NewController(stubSessions{err: domain.ErrSessionUnavailable}, listings)

	page := c.Listings(context.Background(), "token", true)

	assert.Equal(t, AuthUnavailable, page.Auth)
	assert.Equal(t, PhaseReady, page.Phase, "listings still render")
	assert.False(t, page.ShowForm)
}

func TestListings_LookupsRunConcurrently(t *testing.T) {
	delay := 150 * time.Millisecond
	sess := testutil.NewTestSession()
	listings := &testutil.MockListingService{
		ListFunc: func(ctx context.Context) ([]domain.Listing, error) {
			time.Sleep(delay)
			return nil, nil
		},
	}
	c := NewController(stubSessions{sess: sess, delay: delay}, listings)

	start := time.Now()
	page := c.Listings(context.Background(), sess.Token, true)

	assert.Less(t, time.Since(start), 2*delay)
	assert.True(t, page.Authenticated())
	assert.True(t, page.ShowForm)
	assert.Equal(t, "XAF", page.Form.Currency)
}

func TestDetail_MissingIDIsError(t *testing.T) {
	listings := &testutil.MockListingService{Listings: testutil.NewTestListings(3)}
	c := NewController(stubSessions{}, listings)

	for _, id := range []string{"does-not-exist", ""} {
		page := c.Detail(context.Background(), "", id, DetailQuery{})

		assert.Equal(t, PhaseError, page.Phase)
		assert.NotEqual(t, PhaseLoading, page.Phase)
		assert.Equal(t, "Logement non trouvé", page.Error)
		assert.Nil(t, page.Listing)
	}
}

func TestDetail_Ready(t *testing.T) {
	l := testutil.NewTestListing(
		testutil.WithListingID("l-1"),
		testutil.WithImages("a.jpg", "b.jpg", "c.jpg"),
		testutil.WithOwner("owner@example.com", ""),
		testutil.WithStatus(domain.StatusSold),
	)
	listings := &testutil.MockListingService{Listings: []domain.Listing{l}}
	sess := testutil.NewTestSession()
	c := NewController(stubSessions{sess: sess}, listings)

	page := c.Detail(context.Background(), sess.Token, "l-1", DetailQuery{Image: 5, Favorite: true})

	require.Equal(t, PhaseReady, page.Phase)
	assert.Equal(t, 2, page.Gallery.Index)
	assert.Equal(t, "c.jpg", page.Gallery.Current())
	assert.True(t, page.Favorite)
	assert.Equal(t, "Vendu", page.StatusTitle)
	assert.Equal(t, "🏠 Studio", page.TypeBadge)
	assert.True(t, page.CanContact())
	assert.Equal(t, 1, int(listings.ListCalls.Load()))
}

func TestCreateListing_InvalidPriceNeverSent(t *testing.T) {
	listings := &testutil.MockListingService{}
	c := NewController(stubSessions{}, listings)
	sess := testutil.NewTestSession()

	for _, price := range []string{"", "abc", "12abc"} {
		form := ParseListingForm(validValues())
		form.Price = price

		_, err := c.CreateListing(context.Background(), sess, form)

		var valErr *domain.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Contains(t, valErr.Fields, "price")
		assert.Equal(t, PhaseError, form.Phase)
	}
	assert.Zero(t, listings.CreateCalls.Load())
}

func TestCreateListing_RequiresSession(t *testing.T) {
	listings := &testutil.MockListingService{}
	c := NewController(stubSessions{}, listings)

	_, err := c.CreateListing(context.Background(), nil, ParseListingForm(validValues()))

	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Zero(t, listings.CreateCalls.Load())
}

func TestCreateListing_RefetchContainsItemOnce(t *testing.T) {
	listings := &testutil.MockListingService{Listings: testutil.NewTestListings(2)}
	sess := testutil.NewTestSession()
	c := NewController(stubSessions{sess: sess}, listings)

	created, err := c.CreateListing(context.Background(), sess, ParseListingForm(validValues()))
	require.NoError(t, err)

	page := c.Listings(context.Background(), sess.Token, false)
	require.Equal(t, PhaseReady, page.Phase)

	count := 0
	for _, card := range page.Listings {
		if card.ID == created.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, 3, page.Count())
}

func TestCreateListing_BackendMessageSurfaces(t *testing.T) {
	listings := &testutil.MockListingService{
		CreateFunc: func(ctx context.Context, token string, in domain.ListingInput) (*domain.Listing, error) {
			return nil, &domain.ValidationError{Message: "district inconnu"}
		},
	}
	c := NewController(stubSessions{}, listings)
	form := ParseListingForm(validValues())

	_, err := c.CreateListing(context.Background(), testutil.NewTestSession(), form)

	assert.Error(t, err)
	assert.Equal(t, "district inconnu", form.Message)
	assert.Equal(t, PhaseError, form.Phase)
}

func TestCreateListing_SecondSubmissionRejected(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	listings := &testutil.MockListingService{
		CreateFunc: func(ctx context.Context, token string, in domain.ListingInput) (*domain.Listing, error) {
			close(entered)
			<-unblock
			return &domain.Listing{ID: "new"}, nil
		},
	}
	c := NewController(stubSessions{}, listings)
	sess := testutil.NewTestSession()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.CreateListing(context.Background(), sess, ParseListingForm(validValues()))
		assert.NoError(t, err)
	}()

	<-entered
	_, err := c.CreateListing(context.Background(), sess, ParseListingForm(validValues()))
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)

	close(unblock)
	wg.Wait()
	assert.Equal(t, int32(1), listings.CreateCalls.Load())
}

func TestSendContact_WhitespaceIsNoop(t *testing.T) {
	listings := &testutil.MockListingService{}
	c := NewController(stubSessions{}, listings)

	for _, msg := range []string{"", "   ", "\n\t "} {
		sent, err := c.SendContact(context.Background(), testutil.NewTestSession(), "l-1", msg)
		assert.NoError(t, err)
		assert.False(t, sent)
	}
	assert.Zero(t, listings.ContactCalls.Load())
}

func TestSendContact(t *testing.T) {
	listings := &testutil.MockListingService{}
	c := NewController(stubSessions{}, listings)

	sent, err := c.SendContact(context.Background(), testutil.NewTestSession(), "l-1", "  Bonjour, est-il libre ?  ")
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, listings.Contacts, 1)
	assert.Equal(t, domain.ContactRequest{Message: "Bonjour, est-il libre ?", ListingID: "l-1"}, listings.Contacts[0])

	_, err = c.SendContact(context.Background(), nil, "l-1", "Bonjour")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, int32(1), listings.ContactCalls.Load())
}

func TestStep_LogsRejectedTransition(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var m Machine
	step(context.Background(), &m, func() error { return m.Settle(nil) })
	assert.Equal(t, PhaseIdle, m.Phase())
	assert.Contains(t, buf.String(), "view state transition rejected")
	assert.Contains(t, buf.String(), "phase=idle")

	buf.Reset()
	step(context.Background(), &m, m.Load)
	step(context.Background(), &m, func() error { return m.Settle(nil) })
	assert.Equal(t, PhaseReady, m.Phase())
	assert.NotContains(t, buf.String(), "view state transition rejected")
}
