// Package storefront ties the catalog, cart sync and search together into one
// client-side view of the store.
package storefront

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/adapter"
	"storefront/internal/cartsync"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/reconcile"
	"storefront/internal/search"
)

// View is a consistent snapshot handed to subscribers.
type View struct {
	Catalog []model.Product        `json:"catalog"`
	Cart    cartsync.Cart          `json:"cart"`
	Summary reconcile.OrderSummary `json:"summary"`
}

// Config holds Storefront settings. Zero fields get defaults.
type Config struct {
	SearchDelay   time.Duration
	SequenceGuard bool
	Clock         search.Clock
	Notices       notice.Sink
	Logger        *slog.Logger
}

// Storefront holds one shopper's catalog and cart.
//
// The cart is only written by the cart syncer's publish callback and by
// catalog changes, which re-merge the held records. Consumers get copies.
type Storefront struct {
	api     adapter.Storefront
	catalog *catalog.Store
	search  *search.Controller
	sync    *cartsync.Syncer
	notices notice.Sink
	logger  *slog.Logger

	mu      sync.Mutex
	records []model.CartRecord
	items   []model.CartLineItem
	subs    map[int]func(View)
	nextSub int

	unsubscribeCatalog func()
}

// New creates a Storefront backed by api. Call Load to populate it.
func New(api adapter.Storefront, cfg Config) *Storefront {
	if cfg.Notices == nil {
		cfg.Notices = notice.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Storefront{
		api:     api,
		catalog: catalog.New(cfg.SequenceGuard),
		notices: cfg.Notices,
		logger:  cfg.Logger,
		records: []model.CartRecord{},
		items:   []model.CartLineItem{},
		subs:    make(map[int]func(View)),
	}
	s.search = search.New(api, s.catalog, search.Config{
		Delay:   cfg.SearchDelay,
		Clock:   cfg.Clock,
		Notices: cfg.Notices,
		Logger:  cfg.Logger.With(slog.String("component", "search")),
	})
	s.sync = cartsync.New(api, cartsync.Config{
		Notices: cfg.Notices,
		Logger:  cfg.Logger.With(slog.String("component", "cartsync")),
		Publish: s.setCart,
	})
	s.unsubscribeCatalog = s.catalog.Subscribe(s.remerge)
	return s
}

// Load fetches the catalog and the session's cart concurrently, then merges
// them. A failed catalog fetch keeps the previous catalog; a failed cart
// fetch leaves the cart as it was. Either failure has already been reported
// as a notice; the first one is returned.
func (s *Storefront) Load(ctx context.Context, session model.Session) error {
	var (
		products   []model.Product
		records    []model.CartRecord
		catalogErr error
		cartErr    error
	)

	var g errgroup.Group
	g.Go(func() error {
		products, catalogErr = s.listProducts(ctx)
		return catalogErr
	})
	g.Go(func() error {
		records, cartErr = s.sync.FetchRecords(ctx, session)
		return cartErr
	})
	err := g.Wait()

	if catalogErr == nil {
		s.catalog.Replace(products)
	}
	if cartErr == nil {
		s.setCart(ctx, cartsync.Cart{Records: records})
	}

	s.logger.InfoContext(ctx, "storefront loaded",
		slog.Int("products", s.catalog.Len()),
		slog.Int("cart_records", len(records)),
		slog.Bool("authenticated", session.Authenticated()),
	)
	return err
}

// RefreshCatalog replaces the catalog with the full product list.
func (s *Storefront) RefreshCatalog(ctx context.Context) error {
	products, err := s.listProducts(ctx)
	if err != nil {
		return err
	}
	s.catalog.Replace(products)
	return nil
}

func (s *Storefront) listProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.api.ListProducts(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "fetching products failed", slog.Any("error", err))
		s.notices.Notify(ctx, notice.Error(codeOf(err), model.MsgProductsFailed))
		return []model.Product{}, err
	}
	return products, nil
}

// Search schedules a debounced search for text. Results replace the catalog.
func (s *Storefront) Search(text string) search.Handle {
	return s.search.OnSearchInput(text)
}

// SearchNow runs a search immediately, bypassing the debounce window.
func (s *Storefront) SearchNow(ctx context.Context, text string) {
	s.search.Cancel()
	s.search.Search(ctx, s.catalog.NextSeq(), text)
}

// AddToCart adds productID with the "Add to cart" semantics of opts.
func (s *Storefront) AddToCart(ctx context.Context, session model.Session, productID string, qty int, opts cartsync.AddOptions) (cartsync.Cart, error) {
	return s.held(s.sync.AddToCart(ctx, session, s.currentRecords(), s.catalog.Products(), productID, qty, opts))
}

// SetQuantity sets productID's quantity; 0 removes it.
func (s *Storefront) SetQuantity(ctx context.Context, session model.Session, productID string, qty int) (cartsync.Cart, error) {
	return s.held(s.sync.SetQuantity(ctx, session, s.currentRecords(), s.catalog.Products(), productID, qty))
}

// Increment adds one unit of productID.
func (s *Storefront) Increment(ctx context.Context, session model.Session, productID string) (cartsync.Cart, error) {
	return s.held(s.sync.Increment(ctx, session, s.currentRecords(), s.catalog.Products(), productID))
}

// Decrement removes one unit of productID.
func (s *Storefront) Decrement(ctx context.Context, session model.Session, productID string) (cartsync.Cart, error) {
	return s.held(s.sync.Decrement(ctx, session, s.currentRecords(), s.catalog.Products(), productID))
}

// FetchCart reloads the session's cart.
func (s *Storefront) FetchCart(ctx context.Context, session model.Session) (cartsync.Cart, error) {
	return s.held(s.sync.FetchCart(ctx, session, s.catalog.Products()))
}

// held returns the storefront's cart in place of one the syncer built. The
// syncer merges against the catalog it was handed, which a search may have
// replaced while the request was in flight.
func (s *Storefront) held(_ cartsync.Cart, err error) (cartsync.Cart, error) {
	return s.Cart(), err
}

// Catalog returns the current catalog.
func (s *Storefront) Catalog() []model.Product {
	return s.catalog.Products()
}

// Cart returns the current cart.
func (s *Storefront) Cart() cartsync.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLocked()
}

// Summary returns the order details for the current cart.
func (s *Storefront) Summary() reconcile.OrderSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reconcile.Summarize(s.items)
}

// View returns a snapshot of the catalog and cart.
func (s *Storefront) View() View {
	s.mu.Lock()
	cart := s.cartLocked()
	s.mu.Unlock()
	return View{
		Catalog: s.catalog.Products(),
		Cart:    cart,
		Summary: reconcile.Summarize(cart.Items),
	}
}

// Subscribe registers fn for every cart or catalog change. fn runs outside
// the storefront lock. The returned func unsubscribes.
func (s *Storefront) Subscribe(fn func(View)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops pending searches and detaches from the catalog.
func (s *Storefront) Close() {
	s.search.Close()
	s.unsubscribeCatalog()
}

// setCart installs the records of a cart produced by the syncer and merges
// them against the current catalog. A catalog change racing with this call
// re-merges after it, since remerge waits for s.mu.
func (s *Storefront) setCart(_ context.Context, cart cartsync.Cart) {
	s.mu.Lock()
	s.records = model.NormalizeRecords(cart.Records)
	s.items = reconcile.Reconcile(s.records, s.catalog.Products())
	s.mu.Unlock()
	s.broadcast()
}

// remerge rebuilds line items from the held records after a catalog change.
// Records dropped for lack of a product come back when the product does.
func (s *Storefront) remerge(products []model.Product) {
	s.mu.Lock()
	s.items = reconcile.Reconcile(s.records, products)
	s.mu.Unlock()
	s.broadcast()
}

func (s *Storefront) broadcast() {
	view := s.View()

	s.mu.Lock()
	subs := make([]func(View), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

func (s *Storefront) currentRecords() []model.CartRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneRecords(s.records)
}

func (s *Storefront) cartLocked() cartsync.Cart {
	items := make([]model.CartLineItem, len(s.items))
	copy(items, s.items)
	return cartsync.Cart{Records: model.CloneRecords(s.records), Items: items}
}

func codeOf(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL_ERROR"
}
