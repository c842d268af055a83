package storefront

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/adapter"
	"storefront/internal/cartsync"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/search"
)

var (
	session = model.Session{Token: "tok-1", Username: "crio.do"}

	productA = model.Product{ID: "A", Name: "Tan Leatherette Weekender Duffle", Cost: decimal.NewFromInt(5)}
	productB = model.Product{ID: "B", Name: "Stylecon 9 Seater RHS Sofa Set", Cost: decimal.NewFromInt(10)}
)

func newTestStorefront(t *testing.T, api *adapter.Mock) (*Storefront, *search.FakeClock, *notice.Recorder) {
	t.Helper()
	clock := search.NewFakeClock()
	notices := &notice.Recorder{}
	s := New(api, Config{SequenceGuard: true, Clock: clock, Notices: notices})
	t.Cleanup(s.Close)
	return s, clock, notices
}

func catalogAPI() *adapter.Mock {
	return &adapter.Mock{
		ListProductsFunc: func(context.Context) ([]model.Product, error) {
			return []model.Product{productA, productB}, nil
		},
		FetchCartFunc: func(context.Context, string) ([]model.CartRecord, error) {
			return []model.CartRecord{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}}, nil
		},
	}
}

func TestLoad(t *testing.T) {
	s, _, notices := newTestStorefront(t, catalogAPI())

	require.NoError(t, s.Load(t.Context(), session))

	assert.Len(t, s.Catalog(), 2)
	cart := s.Cart()
	require.Len(t, cart.Items, 2)
	assert.True(t, cart.Total().Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 0, notices.Len())

	summary := s.Summary()
	assert.Equal(t, 3, summary.Products)
	assert.True(t, summary.Subtotal.Equal(decimal.NewFromInt(15)))
	assert.True(t, summary.Shipping.IsZero())
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(20)))
}

func TestLoadRunsFetchesConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	api := &adapter.Mock{
		ListProductsFunc: func(context.Context) ([]model.Product, error) {
			started.Done()
			<-release
			return []model.Product{productA}, nil
		},
		FetchCartFunc: func(context.Context, string) ([]model.CartRecord, error) {
			started.Done()
			<-release
			return []model.CartRecord{{ProductID: "A", Quantity: 1}}, nil
		},
	}
	s, _, _ := newTestStorefront(t, api)

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background(), session) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Load did not finish; fetches are not concurrent")
	}
	assert.Len(t, s.Cart().Items, 1)
}

func TestLoadAnonymousSkipsCart(t *testing.T) {
	api := catalogAPI()
	s, _, _ := newTestStorefront(t, api)

	require.NoError(t, s.Load(t.Context(), model.Session{}))

	assert.Equal(t, 0, api.FetchCalls())
	assert.Len(t, s.Catalog(), 2)
	assert.Empty(t, s.Cart().Items)
}

func TestLoadCatalogFailure(t *testing.T) {
	api := catalogAPI()
	api.ListProductsFunc = func(context.Context) ([]model.Product, error) {
		return nil, model.NewUnreachableError("storefront service", errors.New("refused"))
	}
	s, _, notices := newTestStorefront(t, api)

	err := s.Load(t.Context(), session)

	assert.ErrorIs(t, err, model.ErrUnreachable)
	assert.Empty(t, s.Catalog())
	assert.Len(t, s.Cart().Records, 2, "cart records are kept for a later catalog")
	assert.Empty(t, s.Cart().Items)

	got := notices.Notices()
	require.Len(t, got, 1)
	assert.Equal(t, model.MsgProductsFailed, got[0].Message)
}

func TestReloadCatalogFailureKeepsCatalog(t *testing.T) {
	api := catalogAPI()
	s, _, _ := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))

	api.ListProductsFunc = func(context.Context) ([]model.Product, error) {
		return nil, model.NewServiceError(503, "")
	}
	err := s.Load(t.Context(), session)

	assert.ErrorIs(t, err, model.ErrServiceFault)
	assert.Len(t, s.Catalog(), 2)
	assert.Len(t, s.Cart().Items, 2)
}

func TestCatalogChangeRemerges(t *testing.T) {
	api := catalogAPI()
	api.SearchProductsFunc = func(_ context.Context, text string) ([]model.Product, error) {
		return []model.Product{productB}, nil
	}
	s, clock, _ := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))

	s.Search("sofa")
	clock.Advance(search.DefaultDelay)

	cart := s.Cart()
	assert.Len(t, cart.Records, 2)
	require.Len(t, cart.Items, 1, "A is hidden while the catalog is narrowed")
	assert.Equal(t, "B", cart.Items[0].ID)

	require.NoError(t, s.RefreshCatalog(t.Context()))
	assert.Len(t, s.Cart().Items, 2, "A comes back with the full catalog")
}

func TestSearchNoMatchesEmptiesCatalog(t *testing.T) {
	api := catalogAPI()
	s, clock, notices := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))

	s.Search("zzz")
	clock.Advance(search.DefaultDelay)

	assert.Empty(t, s.Catalog())
	assert.Empty(t, s.Cart().Items)
	assert.Equal(t, 0, notices.Len())
}

func TestSearchNowBypassesDebounce(t *testing.T) {
	api := catalogAPI()
	api.SearchProductsFunc = func(_ context.Context, text string) ([]model.Product, error) {
		return []model.Product{productA}, nil
	}
	s, clock, _ := newTestStorefront(t, api)

	pending := s.Search("duf")
	s.SearchNow(t.Context(), "duffle")
	clock.Advance(time.Second)

	assert.False(t, pending.Pending())
	assert.Equal(t, 1, api.SearchCalls())
	assert.Len(t, s.Catalog(), 1)
}

func TestDuplicateAddLeavesStateUnchanged(t *testing.T) {
	api := catalogAPI()
	s, _, notices := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))
	before := s.Cart()

	_, err := s.AddToCart(t.Context(), session, "A", 1, cartsync.AddOptions{PreventDuplicate: true})

	assert.ErrorIs(t, err, model.ErrAlreadyInCart)
	assert.Equal(t, 0, api.UpsertCalls())
	assert.Equal(t, before, s.Cart())
	require.Len(t, notices.Notices(), 1)
	assert.Equal(t, notice.SeverityWarning, notices.Notices()[0].Severity)
}

func TestCartMutationsPublish(t *testing.T) {
	api := catalogAPI()
	api.UpsertCartFunc = func(_ context.Context, _ string, req model.UpsertCartRequest) ([]model.CartRecord, error) {
		return []model.CartRecord{{ProductID: "A", Quantity: 2}, {ProductID: req.ProductID, Quantity: req.Quantity}}, nil
	}
	s, _, _ := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))

	var views []View
	unsubscribe := s.Subscribe(func(v View) { views = append(views, v) })

	_, err := s.Increment(t.Context(), session, "B")
	require.NoError(t, err)
	unsubscribe()
	_, err = s.Decrement(t.Context(), session, "B")
	require.NoError(t, err)

	require.Len(t, views, 1)
	assert.Equal(t, 2, views[0].Cart.Quantity("B"))
	assert.True(t, views[0].Summary.Total.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 2, api.UpsertCalls())
}

func TestFetchCartFailureKeepsCart(t *testing.T) {
	api := catalogAPI()
	s, _, notices := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))
	before := s.Cart()

	api.FetchCartFunc = func(context.Context, string) ([]model.CartRecord, error) {
		return nil, model.NewServiceError(400, "Protected route, Oauth2 Bearer token not found")
	}
	_, err := s.FetchCart(t.Context(), session)

	assert.Error(t, err)
	assert.Equal(t, before, s.Cart())
	require.Len(t, notices.Notices(), 1)
	assert.Equal(t, "Protected route, Oauth2 Bearer token not found", notices.Notices()[0].Message)
}

func TestSearchDuringCartUpdateKeepsItemsInCatalog(t *testing.T) {
	api := catalogAPI()
	started := make(chan struct{})
	release := make(chan struct{})
	api.UpsertCartFunc = func(context.Context, string, model.UpsertCartRequest) ([]model.CartRecord, error) {
		close(started)
		<-release
		return []model.CartRecord{{ProductID: "A", Quantity: 3}, {ProductID: "B", Quantity: 1}}, nil
	}
	api.SearchProductsFunc = func(context.Context, string) ([]model.Product, error) {
		return []model.Product{productA}, nil
	}
	s, _, _ := newTestStorefront(t, api)
	require.NoError(t, s.Load(t.Context(), session))

	type result struct {
		cart cartsync.Cart
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cart, err := s.Increment(context.Background(), session, "A")
		done <- result{cart, err}
	}()

	<-started
	s.SearchNow(t.Context(), "duffle")
	require.Len(t, s.Catalog(), 1)
	close(release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Increment did not return")
	}
	require.NoError(t, res.err)

	inCatalog := make(map[string]bool)
	for _, p := range s.Catalog() {
		inCatalog[p.ID] = true
	}
	cart := s.Cart()
	for _, item := range cart.Items {
		assert.True(t, inCatalog[item.ProductID], "line item %s not in catalog", item.ProductID)
	}
	assert.Len(t, cart.Items, 1)
	assert.Len(t, cart.Records, 2)
	assert.Equal(t, cart, res.cart)
}
