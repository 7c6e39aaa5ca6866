package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-web/internal/domain"
)

func newListingsServer(t *testing.T, handler http.HandlerFunc) *ListingsClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewListingsClient(server.URL, 2*time.Second)
	require.NoError(t, err)
	return client
}

func validInput() domain.ListingInput {
	return domain.ListingInput{
		Title:       "Studio moderne",
		Description: "Proche du marché",
		Price:       150000,
		Currency:    domain.CurrencyXAF,
		City:        "Douala",
		District:    "Akwa",
		Type:        domain.TypeStudio,
	}
}

func TestNewListingsClient_MissingURL(t *testing.T) {
	client, err := NewListingsClient("  ", time.Second)
	assert.ErrorIs(t, err, ErrMissingConfig)
	assert.Nil(t, client)
}

func TestList_Success(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/listings", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id":"1","title":"Studio","price":"150000","currency":"XAF","type":"studio","status":"available","images":[{"imageUrl":"https://img/1.jpg"}],"owner":{"email":"owner@example.com","phone":"+237600000000"}},
			{"id":"2","title":"Chambre","price":45000,"type":"chambre","status":"archived"}
		]`))
	})

	listings, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, domain.Price(150000), listings[0].Price)
	assert.True(t, listings[0].HasImages())
	assert.Equal(t, "+237600000000", listings[0].OwnerPhone())

	assert.Equal(t, domain.StatusAvailable, listings[1].Status)
	assert.Equal(t, domain.CurrencyXAF, listings[1].Currency)
	assert.Nil(t, listings[1].Owner)
	assert.False(t, listings[1].HasImages())
}

func TestList_KeepsListingsWithNullOptionalFields(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"1","title":"A","price":100,"owner":{"email":null,"phone":"+237"}},
			{"id":"2","title":"B","price":200,"images":[{"imageUrl":null},{"imageUrl":"https://img/2.jpg"}]}
		]`))
	})

	listings, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "", listings[0].OwnerEmail())
	assert.Equal(t, "+237", listings[0].OwnerPhone())

	require.Len(t, listings[1].Images, 1)
	assert.Equal(t, "https://img/2.jpg", listings[1].Images[0].ImageURL)

	got, err := client.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
}

func TestList_Empty(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	listings, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listings)
	assert.NotNil(t, listings)
}

func TestList_DropsMalformedRecords(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","title":"ok"},{"title":"no id"},{"id":"3","title":"bad price","price":"cheap"}]`))
	})

	listings, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "1", listings[0].ID)
}

func TestList_ServerError(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"connection pool exhausted"}`))
	})

	listings, err := client.List(context.Background())
	assert.Nil(t, listings)

	var ne *domain.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, http.StatusInternalServerError, ne.Status)
	assert.Contains(t, err.Error(), "connection pool exhausted")
}

func TestList_NotAnArray(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	_, err := client.List(context.Background())
	assert.True(t, domain.IsNetworkError(err))
}

func TestList_NoRetry(t *testing.T) {
	var calls atomic.Int32
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.List(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestList_CanceledContext(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.List(ctx)
	var ne *domain.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "request canceled", ne.Reason)
}

func TestGet(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"1","title":"A"},{"id":"2","title":"B"}]`))
	})

	listing, err := client.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "B", listing.Title)

	_, err = client.Get(context.Background(), "99")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestCreate_Success(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(150000), body["price"])
		assert.Equal(t, "XAF", body["currency"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"42","title":"Studio moderne","price":150000,"status":"available"}`))
	})

	listing, err := client.Create(context.Background(), "access-1", validInput())
	require.NoError(t, err)
	assert.Equal(t, "42", listing.ID)
}

func TestCreate_RequiresToken(t *testing.T) {
	var calls atomic.Int32
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.Create(context.Background(), "", validInput())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Zero(t, calls.Load())
}

func TestCreate_InvalidInputNeverSent(t *testing.T) {
	var calls atomic.Int32
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	input := validInput()
	input.Currency = "GBP"

	_, err := client.Create(context.Background(), "access-1", input)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, calls.Load())
}

func TestCreate_BackendValidationMessage(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Ce quartier n'existe pas"}`))
	})

	_, err := client.Create(context.Background(), "access-1", validInput())
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Ce quartier n'existe pas", ve.Message)
}

func TestCreate_ExpiredToken(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Create(context.Background(), "expired", validInput())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestSendContactRequest(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contact-requests", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		var body domain.ContactRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.ContactRequest{Message: "Bonjour", ListingID: "1"}, body)

		w.WriteHeader(http.StatusCreated)
	})

	err := client.SendContactRequest(context.Background(), "access-1", domain.ContactRequest{Message: "Bonjour", ListingID: "1"})
	assert.NoError(t, err)
}

func TestSendContactRequest_Failure(t *testing.T) {
	client := newListingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.SendContactRequest(context.Background(), "access-1", domain.ContactRequest{Message: "Bonjour", ListingID: "1"})
	assert.True(t, domain.IsNetworkError(err))
}
