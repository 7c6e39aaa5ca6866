package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"room-web/internal/apispec"
	"room-web/internal/domain"
	"room-web/internal/observability"
)

// ListingsClient is the data fetcher for the listings REST API. It keeps no
// session state: write calls take the caller's bearer token.
type ListingsClient struct {
	baseURL      string
	httpClient   *http.Client
	listing      *openapi3.Schema
	listingInput *openapi3.Schema
}

// NewListingsClient creates a client for the API rooted at baseURL.
func NewListingsClient(baseURL string, timeout time.Duration) (*ListingsClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: api url is required", ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: api url: %v", ErrMissingConfig, err)
	}

	listing, err := apispec.Schema("Listing")
	if err != nil {
		return nil, err
	}
	listingInput, err := apispec.Schema("ListingInput")
	if err != nil {
		return nil, err
	}

	return &ListingsClient{
		baseURL:      baseURL,
		httpClient:   newHTTPClient(timeout),
		listing:      listing,
		listingInput: listingInput,
	}, nil
}

// List fetches every listing. Records that do not match the Listing schema
// are dropped and logged; the rest are returned normalised.
func (c *ListingsClient) List(ctx context.Context) (listings []domain.Listing, err error) {
	const op = "list_listings"
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	resp, err := do(ctx, c.httpClient, request{
		op:     op,
		method: http.MethodGet,
		url:    c.baseURL + "/listings",
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, classify(op, resp)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, &domain.NetworkError{Op: op, Status: resp.status, Reason: "response is not a listing array", Err: err}
	}

	listings = make([]domain.Listing, 0, len(raw))
	for i, rec := range raw {
		l, err := c.decodeListing(rec)
		if err != nil {
			observability.BackendRecordsRejected.Inc()
			observability.FromContext(ctx).Warn("dropping malformed listing",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}
		listings = append(listings, *l)
	}
	return listings, nil
}

// Get returns the listing with id. The API has no single-item endpoint, so
// this fetches the collection and searches it.
func (c *ListingsClient) Get(ctx context.Context, id string) (listing *domain.Listing, err error) {
	start := time.Now()
	defer func() { observe(ctx, "get_listing", start, err) }()

	listings, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].ID == id {
			return &listings[i], nil
		}
	}
	return nil, domain.ErrListingNotFound
}

// Create posts a new listing on behalf of the holder of accessToken.
func (c *ListingsClient) Create(ctx context.Context, accessToken string, input domain.ListingInput) (listing *domain.Listing, err error) {
	const op = "create_listing"
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	if accessToken == "" {
		return nil, domain.ErrUnauthenticated
	}
	if err := c.validateInput(input); err != nil {
		return nil, err
	}

	resp, err := do(ctx, c.httpClient, request{
		op:      op,
		method:  http.MethodPost,
		url:     c.baseURL + "/listings",
		headers: map[string]string{"Authorization": bearer(accessToken)},
		body:    input,
	})
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return nil, classify(op, resp)
	}

	created, err := c.decodeListing(resp.body)
	if err != nil {
		return nil, &domain.ValidationError{Message: "réponse invalide du serveur: " + err.Error()}
	}
	return created, nil
}

// SendContactRequest delivers a message to a listing owner.
func (c *ListingsClient) SendContactRequest(ctx context.Context, accessToken string, req domain.ContactRequest) (err error) {
	const op = "send_contact_request"
	start := time.Now()
	defer func() { observe(ctx, op, start, err) }()

	if accessToken == "" {
		return domain.ErrUnauthenticated
	}

	resp, err := do(ctx, c.httpClient, request{
		op:      op,
		method:  http.MethodPost,
		url:     c.baseURL + "/contact-requests",
		headers: map[string]string{"Authorization": bearer(accessToken)},
		body:    req,
	})
	if err != nil {
		return err
	}
	if resp.status < 200 || resp.status > 299 {
		return classify(op, resp)
	}
	return nil
}

// Health reports whether the listings endpoint answers.
func (c *ListingsClient) Health(ctx context.Context) error {
	resp, err := do(ctx, c.httpClient, request{
		op:     "listings_health",
		method: http.MethodGet,
		url:    c.baseURL + "/listings",
	})
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return classify("listings_health", resp)
	}
	return nil
}

func (c *ListingsClient) decodeListing(raw []byte) (*domain.Listing, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	if err := c.listing.VisitJSON(generic); err != nil {
		return nil, err
	}

	var l domain.Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	l.Normalize()
	return &l, nil
}

func (c *ListingsClient) validateInput(input domain.ListingInput) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return err
	}
	if err := c.listingInput.VisitJSON(generic); err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}
	return nil
}
