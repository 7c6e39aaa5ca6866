package view

import (
	"context"
	"log/slog"
	"strings"

	"room-web/internal/domain"
	"room-web/internal/observability"
)

// SessionSource resolves the visitor's session.
type SessionSource interface {
	CurrentUser(ctx context.Context, sessionToken string) (*domain.Session, error)
}

// ListingService is the remote listings API.
type ListingService interface {
	List(ctx context.Context) ([]domain.Listing, error)
	Create(ctx context.Context, accessToken string, input domain.ListingInput) (*domain.Listing, error)
	SendContactRequest(ctx context.Context, accessToken string, req domain.ContactRequest) error
}

// Controller builds pages and runs the write actions behind them. It holds
// no per-visitor state besides the in-flight guard.
type Controller struct {
	sessions SessionSource
	listings ListingService
	guard    *Guard
}

func NewController(sessions SessionSource, listings ListingService) *Controller {
	return &Controller{
		sessions: sessions,
		listings: listings,
		guard:    NewGuard(),
	}
}

type sessionResult struct {
	sess *domain.Session
	err  error
}

type listingsResult struct {
	listings []domain.Listing
	err      error
}

// load runs the session lookup and the listing fetch side by side. Each
// writes to its own slot, so the order they finish in does not matter.
func (c *Controller) load(ctx context.Context, sessionToken string) (sessionResult, listingsResult) {
	sessCh := make(chan sessionResult, 1)
	listCh := make(chan listingsResult, 1)

	go func() {
		sess, err := c.sessions.CurrentUser(ctx, sessionToken)
		sessCh <- sessionResult{sess: sess, err: err}
	}()
	go func() {
		listings, err := c.listings.List(ctx)
		listCh <- listingsResult{listings: listings, err: err}
	}()

	return <-sessCh, <-listCh
}

// step applies a transition. A rejected one leaves the phase unchanged and
// is logged.
func step(ctx context.Context, m *Machine, transition func() error) {
	if err := transition(); err != nil {
		observability.FromContext(ctx).Error("view state transition rejected",
			slog.String("phase", m.Phase().String()),
			slog.String("error", err.Error()))
	}
}

// Header resolves only the session, for pages without listings.
func (c *Controller) Header(ctx context.Context, sessionToken string) Header {
	sess, err := c.sessions.CurrentUser(ctx, sessionToken)
	if err != nil {
		observability.FromContext(ctx).Warn("session lookup failed", slog.String("error", err.Error()))
	}
	return NewHeader(sess, err)
}

// Listings builds the listing grid. The create form is only offered to
// signed-in visitors.
func (c *Controller) Listings(ctx context.Context, sessionToken string, showForm bool) *ListingsPage {
	var m Machine
	step(ctx, &m, m.Load)

	sr, lr := c.load(ctx, sessionToken)
	if sr.err != nil {
		observability.FromContext(ctx).Warn("session lookup failed", slog.String("error", sr.err.Error()))
	}

	page := &ListingsPage{Header: NewHeader(sr.sess, sr.err)}
	page.ShowForm = showForm && page.CanCreate()
	if page.ShowForm {
		page.Form = NewListingForm()
	}

	step(ctx, &m, func() error { return m.Settle(lr.err) })
	page.Phase = m.Phase()
	if lr.err != nil {
		observability.FromContext(ctx).Warn("failed to load listings", slog.String("error", lr.err.Error()))
		page.Error = Message(lr.err)
		page.Cause = lr.err
		return page
	}

	page.Listings = make([]ListingCard, 0, len(lr.listings))
	for _, l := range lr.listings {
		page.Listings = append(page.Listings, newListingCard(l))
	}
	return page
}

// Detail builds the page of one listing. An id missing from the collection
// ends in the error state.
func (c *Controller) Detail(ctx context.Context, sessionToken, id string, q DetailQuery) *DetailPage {
	var m Machine
	step(ctx, &m, m.Load)

	sr, lr := c.load(ctx, sessionToken)
	if sr.err != nil {
		observability.FromContext(ctx).Warn("session lookup failed", slog.String("error", sr.err.Error()))
	}

	page := &DetailPage{Header: NewHeader(sr.sess, sr.err), Favorite: q.Favorite}

	err := lr.err
	var listing *domain.Listing
	if err == nil {
		listing = find(lr.listings, id)
		if listing == nil {
			err = domain.ErrListingNotFound
		}
	}

	step(ctx, &m, func() error { return m.Settle(err) })
	page.Phase = m.Phase()
	if err != nil {
		page.Error = Message(err)
		page.Cause = err
		return page
	}

	page.Listing = listing
	page.Price = FormatPrice(float64(listing.Price), listing.Currency)
	page.TypeBadge = TypeBadge(listing.Type)
	page.StatusTitle, page.StatusText = StatusDetail(listing.Status)
	page.Gallery = NewGallery(listing.Images, q.Image)
	return page
}

func find(listings []domain.Listing, id string) *domain.Listing {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	for i := range listings {
		if listings[i].ID == id {
			l := listings[i]
			return &l
		}
	}
	return nil
}

// CreateListing validates form and, when it is valid, sends it with the
// session's credential. Invalid input never reaches the network.
func (c *Controller) CreateListing(ctx context.Context, sess *domain.Session, form *ListingForm) (*domain.Listing, error) {
	machine := Machine{phase: PhaseReady}

	input, ok := form.Validate()
	if !ok {
		observability.WriteActionsRejected.WithLabelValues(string(ActionCreateListing), "invalid").Inc()
		err := &domain.ValidationError{Message: msgInvalidForm, Fields: form.Errors}
		form.Message = msgInvalidForm
		form.Phase = PhaseError
		return nil, err
	}

	if !sess.Authenticated() {
		observability.WriteActionsRejected.WithLabelValues(string(ActionCreateListing), "anonymous").Inc()
		return nil, domain.ErrUnauthenticated
	}

	release, err := c.guard.Acquire(sess.ID, ActionCreateListing)
	if err != nil {
		form.Message = CreateMessage(err)
		return nil, err
	}
	defer release()

	step(ctx, &machine, machine.Submit)
	form.Phase = machine.Phase()

	listing, err := c.listings.Create(ctx, sess.AccessToken, input)
	step(ctx, &machine, func() error { return machine.Settle(err) })
	form.Phase = machine.Phase()
	if err != nil {
		form.Message = CreateMessage(err)
		observability.FromContext(ctx).Warn("create listing failed", slog.String("error", err.Error()))
		return nil, err
	}

	observability.FromContext(ctx).Info("listing created", slog.String("listing_id", listing.ID))
	return listing, nil
}

// SendContact sends message to the owner of listingID. A message made only
// of whitespace is ignored and sent is false.
func (c *Controller) SendContact(ctx context.Context, sess *domain.Session, listingID, message string) (sent bool, err error) {
	message = strings.TrimSpace(message)
	if message == "" {
		observability.WriteActionsRejected.WithLabelValues(string(ActionContact), "empty").Inc()
		return false, nil
	}

	if !sess.Authenticated() {
		observability.WriteActionsRejected.WithLabelValues(string(ActionContact), "anonymous").Inc()
		return false, domain.ErrUnauthenticated
	}

	release, err := c.guard.Acquire(sess.ID, ActionContact)
	if err != nil {
		return false, err
	}
	defer release()

	req := domain.ContactRequest{Message: message, ListingID: listingID}
	if err := c.listings.SendContactRequest(ctx, sess.AccessToken, req); err != nil {
		observability.FromContext(ctx).Warn("contact request failed",
			slog.String("listing_id", listingID),
			slog.String("error", err.Error()))
		return false, err
	}
	return true, nil
}

// ContactSentMessage is the confirmation shown after a successful send.
func ContactSentMessage() string { return msgContactSent }
