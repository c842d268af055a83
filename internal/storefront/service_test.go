package storefront

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/model"
	"storefront/internal/notice"
)

func TestServiceSearch(t *testing.T) {
	api := catalogAPI()
	svc := NewService(api, nil)

	api.SearchProductsFunc = func(context.Context, string) ([]model.Product, error) {
		return nil, model.NewNotFoundError("products")
	}
	rec := &notice.Recorder{}
	products, err := svc.Search(t.Context(), rec, "nothing")
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
	assert.Equal(t, 0, rec.Len())

	api.SearchProductsFunc = func(context.Context, string) ([]model.Product, error) {
		return nil, model.NewUnreachableError("storefront service", errors.New("refused"))
	}
	_, err = svc.Search(t.Context(), rec, "sofa")
	assert.ErrorIs(t, err, model.ErrUnreachable)
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, model.MsgSearchUnreachable, rec.Notices()[0].Message)
}

func TestServiceSearchDoesNotTouchCachedCatalog(t *testing.T) {
	api := catalogAPI()
	api.SearchProductsFunc = func(context.Context, string) ([]model.Product, error) {
		return []model.Product{productB}, nil
	}
	svc := NewService(api, nil)
	rec := &notice.Recorder{}

	_, err := svc.Products(t.Context(), rec)
	require.NoError(t, err)
	_, err = svc.Search(t.Context(), rec, "sofa")
	require.NoError(t, err)

	cart, err := svc.Cart(t.Context(), rec, session)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 1, api.ListCalls(), "catalog is cached after the first fetch")
}

func TestServiceAddToCartChecksRemoteCart(t *testing.T) {
	api := catalogAPI()
	svc := NewService(api, nil)
	rec := &notice.Recorder{}

	_, err := svc.AddToCart(t.Context(), rec, session, "A", 1, true)

	assert.ErrorIs(t, err, model.ErrAlreadyInCart)
	assert.Equal(t, 1, api.FetchCalls())
	assert.Equal(t, 0, api.UpsertCalls())
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, notice.SeverityWarning, rec.Notices()[0].Severity)
}

func TestServiceAddToCartAnonymous(t *testing.T) {
	api := catalogAPI()
	svc := NewService(api, nil)
	rec := &notice.Recorder{}

	_, err := svc.AddToCart(t.Context(), rec, model.Session{}, "A", 1, true)

	assert.ErrorIs(t, err, model.ErrAuthRequired)
	assert.Equal(t, 0, api.FetchCalls())
	assert.Equal(t, 0, api.UpsertCalls())
}

func TestServiceSetQuantityAndSummary(t *testing.T) {
	api := catalogAPI()
	api.UpsertCartFunc = func(_ context.Context, _ string, req model.UpsertCartRequest) ([]model.CartRecord, error) {
		return []model.CartRecord{{ProductID: req.ProductID, Quantity: req.Quantity}}, nil
	}
	svc := NewService(api, nil)
	rec := &notice.Recorder{}

	cart, err := svc.SetQuantity(t.Context(), rec, session, "B", 3)
	require.NoError(t, err)
	assert.True(t, cart.Total().Equal(decimal.NewFromInt(30)))

	summary, err := svc.Summary(t.Context(), rec, session)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Products)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(20)))
}
