// Package cartsync mutates the remote cart and rebuilds the displayed cart
// from the server's answer.
//
// The Syncer never keeps cart state of its own. Each call takes the caller's
// current records and catalog, and on success publishes the new Cart. On any
// failure the caller's state is left as it was and a notice explains why.
package cartsync

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/reconcile"
)

// Cart is one consistent cart snapshot: the server's records and the line
// items they reconcile to against a catalog.
type Cart struct {
	Records []model.CartRecord   `json:"records"`
	Items   []model.CartLineItem `json:"items"`
}

// NewCart normalizes records and reconciles them against catalog.
func NewCart(records []model.CartRecord, catalog []model.Product) Cart {
	normalized := model.NormalizeRecords(records)
	return Cart{
		Records: normalized,
		Items:   reconcile.Reconcile(normalized, catalog),
	}
}

// Total returns the cart value.
func (c Cart) Total() decimal.Decimal {
	return reconcile.TotalValue(c.Items)
}

// Quantity returns the quantity held for productID, or 0.
func (c Cart) Quantity(productID string) int {
	return quantityOf(c.Records, productID)
}

// Publisher receives every cart produced by a successful sync.
type Publisher func(ctx context.Context, cart Cart)

// AddOptions controls AddToCart.
type AddOptions struct {
	// PreventDuplicate is set by "Add to cart" buttons: it requires a login
	// and refuses products already in the cart.
	PreventDuplicate bool
}

// Config holds Syncer dependencies. Zero fields get defaults.
type Config struct {
	Notices notice.Sink
	Logger  *slog.Logger
	Publish Publisher
}

// Syncer is the only writer of cart-derived state.
type Syncer struct {
	api     adapter.Storefront
	notices notice.Sink
	logger  *slog.Logger
	publish Publisher
}

// New creates a Syncer.
func New(api adapter.Storefront, cfg Config) *Syncer {
	if cfg.Notices == nil {
		cfg.Notices = notice.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Publish == nil {
		cfg.Publish = func(context.Context, Cart) {}
	}
	return &Syncer{
		api:     api,
		notices: cfg.Notices,
		logger:  cfg.Logger,
		publish: cfg.Publish,
	}
}

// AddToCart sets productID's quantity to qty on the server.
//
// With PreventDuplicate, a missing session token or a product already in
// current is refused locally: no request is sent, a warning notice is
// emitted, and the returned Cart equals the input.
func (s *Syncer) AddToCart(ctx context.Context, session model.Session, current []model.CartRecord, catalog []model.Product, productID string, qty int, opts AddOptions) (Cart, error) {
	if opts.PreventDuplicate {
		if !session.Authenticated() {
			return s.reject(ctx, current, catalog, model.NewAuthRequiredError())
		}
		if reconcile.ContainsProduct(current, productID) {
			return s.reject(ctx, current, catalog, model.NewAlreadyInCartError(productID))
		}
	}
	return s.upsert(ctx, session, current, catalog, productID, qty)
}

// SetQuantity sets productID's quantity to qty on the server without the
// AddToCart guards. A quantity of 0 removes the product.
func (s *Syncer) SetQuantity(ctx context.Context, session model.Session, current []model.CartRecord, catalog []model.Product, productID string, qty int) (Cart, error) {
	return s.upsert(ctx, session, current, catalog, productID, qty)
}

// Increment adds one unit to the displayed quantity of productID.
func (s *Syncer) Increment(ctx context.Context, session model.Session, current []model.CartRecord, catalog []model.Product, productID string) (Cart, error) {
	return s.SetQuantity(ctx, session, current, catalog, productID, quantityOf(current, productID)+1)
}

// Decrement removes one unit from the displayed quantity of productID. At
// quantity 1 the product leaves the cart.
func (s *Syncer) Decrement(ctx context.Context, session model.Session, current []model.CartRecord, catalog []model.Product, productID string) (Cart, error) {
	return s.SetQuantity(ctx, session, current, catalog, productID, quantityOf(current, productID)-1)
}

// FetchCart loads the session's cart. Without a token it returns an empty
// cart and sends nothing. A 400 reports the server's message; any other
// failure reports the generic cart message.
func (s *Syncer) FetchCart(ctx context.Context, session model.Session, catalog []model.Product) (Cart, error) {
	records, err := s.FetchRecords(ctx, session)
	if err != nil {
		return Cart{}, err
	}

	cart := NewCart(records, catalog)
	s.logger.DebugContext(ctx, "cart fetched",
		slog.Int("records", len(cart.Records)),
		slog.Int("items", len(cart.Items)),
	)
	s.publish(ctx, cart)
	return cart, nil
}

// FetchRecords is FetchCart without reconciling or publishing. The initial
// load uses it to fetch the cart alongside the catalog.
func (s *Syncer) FetchRecords(ctx context.Context, session model.Session) ([]model.CartRecord, error) {
	if !session.Authenticated() {
		return []model.CartRecord{}, nil
	}

	records, err := s.api.FetchCart(ctx, session.Token)
	if err != nil {
		s.logger.WarnContext(ctx, "fetching cart failed", slog.Any("error", err))
		s.notices.Notify(ctx, fetchNotice(err))
		return nil, err
	}
	return model.NormalizeRecords(records), nil
}

func (s *Syncer) upsert(ctx context.Context, session model.Session, current []model.CartRecord, catalog []model.Product, productID string, qty int) (Cart, error) {
	if productID == "" {
		return s.reject(ctx, current, catalog, model.NewValidationError("productId", "must not be empty"))
	}
	if qty < 0 {
		return s.reject(ctx, current, catalog, model.NewValidationError("qty", "must not be negative"))
	}

	records, err := s.api.UpsertCart(ctx, session.Token, model.UpsertCartRequest{
		ProductID: productID,
		Quantity:  qty,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "updating cart failed",
			slog.String("product_id", productID),
			slog.Int("qty", qty),
			slog.Any("error", err),
		)
		s.notices.Notify(ctx, notice.FromError(err, model.MsgProductsFailed))
		return NewCart(current, catalog), err
	}

	cart := NewCart(records, catalog)
	s.logDiff(ctx, current, cart.Records)
	s.publish(ctx, cart)
	return cart, nil
}

func (s *Syncer) reject(ctx context.Context, current []model.CartRecord, catalog []model.Product, err *model.APIError) (Cart, error) {
	s.logger.DebugContext(ctx, "cart request refused", slog.String("code", err.Code))
	s.notices.Notify(ctx, notice.FromError(err, err.Message))
	return NewCart(current, catalog), err
}

func (s *Syncer) logDiff(ctx context.Context, prev, next []model.CartRecord) {
	diff := reconcile.DiffRecords(prev, next)
	if diff.IsEmpty() {
		return
	}
	s.logger.DebugContext(ctx, "cart synced",
		slog.Int("added", len(diff.Added)),
		slog.Int("removed", len(diff.Removed)),
		slog.Int("changed", len(diff.Changed)),
	)
}

// fetchNotice keeps the server's message only for 400 responses.
func fetchNotice(err error) notice.Notice {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 400 {
		if msg := model.ServerMessage(err); msg != "" {
			return notice.Error(apiErr.Code, msg)
		}
	}
	code := "INTERNAL_ERROR"
	if apiErr != nil {
		code = apiErr.Code
	}
	return notice.Error(code, model.MsgCartFailed)
}

func quantityOf(records []model.CartRecord, productID string) int {
	for _, r := range records {
		if r.ProductID == productID {
			return r.Quantity
		}
	}
	return 0
}
