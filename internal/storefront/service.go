package storefront

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"storefront/internal/adapter"
	"storefront/internal/cartsync"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/reconcile"
)

// Service serves many shoppers at once. It keeps no per-shopper state: every
// cart operation fetches the shopper's records from the service first, and
// notices go to the sink passed with the call.
//
// The full catalog is shared and cached; searches never touch it.
type Service struct {
	api     adapter.Storefront
	catalog *catalog.Store
	logger  *slog.Logger
}

// NewService creates a Service backed by api.
func NewService(api adapter.Storefront, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		api:     api,
		catalog: catalog.New(true),
		logger:  logger,
	}
}

// Products fetches the full catalog and refreshes the cache.
func (s *Service) Products(ctx context.Context, sink notice.Sink) ([]model.Product, error) {
	seq := s.catalog.NextSeq()
	products, err := s.api.ListProducts(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "fetching products failed", slog.Any("error", err))
		sink.Notify(ctx, notice.Error(codeOf(err), model.MsgProductsFailed))
		return nil, err
	}
	s.catalog.Apply(seq, products)
	return model.CloneProducts(products), nil
}

// Search returns products matching text. No matches is an empty list.
func (s *Service) Search(ctx context.Context, sink notice.Sink, text string) ([]model.Product, error) {
	products, err := s.api.SearchProducts(ctx, text)
	switch {
	case err == nil:
		return products, nil
	case errors.Is(err, model.ErrNotFound):
		return []model.Product{}, nil
	case errors.Is(err, model.ErrUnreachable):
		sink.Notify(ctx, notice.FromError(err, model.MsgSearchUnreachable))
	default:
		sink.Notify(ctx, notice.FromError(err, model.MsgSearchFailed))
	}
	s.logger.WarnContext(ctx, "search failed", slog.String("text", text), slog.Any("error", err))
	return nil, err
}

// Cart returns the session's cart reconciled against the catalog.
func (s *Service) Cart(ctx context.Context, sink notice.Sink, session model.Session) (cartsync.Cart, error) {
	products, err := s.cachedCatalog(ctx, sink)
	if err != nil {
		return cartsync.Cart{}, err
	}
	return s.syncer(sink).FetchCart(ctx, session, products)
}

// AddToCart adds productID to the session's cart. With preventDuplicate the
// request is refused when the shopper is anonymous or already has the product.
func (s *Service) AddToCart(ctx context.Context, sink notice.Sink, session model.Session, productID string, qty int, preventDuplicate bool) (cartsync.Cart, error) {
	products, err := s.cachedCatalog(ctx, sink)
	if err != nil {
		return cartsync.Cart{}, err
	}

	syncer := s.syncer(sink)
	var current []model.CartRecord
	if preventDuplicate && session.Authenticated() {
		current, err = syncer.FetchRecords(ctx, session)
		if err != nil {
			return cartsync.Cart{}, err
		}
	}
	return syncer.AddToCart(ctx, session, current, products, productID, qty, cartsync.AddOptions{PreventDuplicate: preventDuplicate})
}

// SetQuantity sets productID's quantity in the session's cart.
func (s *Service) SetQuantity(ctx context.Context, sink notice.Sink, session model.Session, productID string, qty int) (cartsync.Cart, error) {
	products, err := s.cachedCatalog(ctx, sink)
	if err != nil {
		return cartsync.Cart{}, err
	}
	return s.syncer(sink).SetQuantity(ctx, session, nil, products, productID, qty)
}

// Summary returns the order details for the session's cart.
func (s *Service) Summary(ctx context.Context, sink notice.Sink, session model.Session) (reconcile.OrderSummary, error) {
	cart, err := s.Cart(ctx, sink, session)
	if err != nil {
		return reconcile.OrderSummary{}, err
	}
	return reconcile.Summarize(cart.Items), nil
}

// cachedCatalog returns the cached catalog, fetching it on first use.
func (s *Service) cachedCatalog(ctx context.Context, sink notice.Sink) ([]model.Product, error) {
	if s.catalog.Len() > 0 {
		return s.catalog.Products(), nil
	}
	return s.Products(ctx, sink)
}

func (s *Service) syncer(sink notice.Sink) *cartsync.Syncer {
	return cartsync.New(s.api, cartsync.Config{
		Notices: sink,
		Logger:  s.logger,
	})
}
