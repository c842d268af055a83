package adapter

import (
	"context"
	"sync/atomic"

	"storefront/internal/model"
)

// Mock implements Storefront for testing.
// Each method can be configured via function fields; call counters let tests
// assert that guarded operations never reached the network.
type Mock struct {
	ListProductsFunc   func(ctx context.Context) ([]model.Product, error)
	SearchProductsFunc func(ctx context.Context, text string) ([]model.Product, error)
	FetchCartFunc      func(ctx context.Context, token string) ([]model.CartRecord, error)
	UpsertCartFunc     func(ctx context.Context, token string, req model.UpsertCartRequest) ([]model.CartRecord, error)

	listCalls   atomic.Int32
	searchCalls atomic.Int32
	fetchCalls  atomic.Int32
	upsertCalls atomic.Int32
}

var _ Storefront = (*Mock)(nil)

// ListProducts calls the configured ListProductsFunc or returns an empty catalog.
func (m *Mock) ListProducts(ctx context.Context) ([]model.Product, error) {
	m.listCalls.Add(1)
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx)
	}
	return []model.Product{}, nil
}

// SearchProducts calls the configured SearchProductsFunc or reports no matches.
func (m *Mock) SearchProducts(ctx context.Context, text string) ([]model.Product, error) {
	m.searchCalls.Add(1)
	if m.SearchProductsFunc != nil {
		return m.SearchProductsFunc(ctx, text)
	}
	return nil, model.NewNotFoundError("products")
}

// FetchCart calls the configured FetchCartFunc or returns an empty cart.
func (m *Mock) FetchCart(ctx context.Context, token string) ([]model.CartRecord, error) {
	m.fetchCalls.Add(1)
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx, token)
	}
	return []model.CartRecord{}, nil
}

// UpsertCart calls the configured UpsertCartFunc or returns an error.
func (m *Mock) UpsertCart(ctx context.Context, token string, req model.UpsertCartRequest) ([]model.CartRecord, error) {
	m.upsertCalls.Add(1)
	if m.UpsertCartFunc != nil {
		return m.UpsertCartFunc(ctx, token, req)
	}
	return nil, model.NewInternalError(nil)
}

// ListCalls returns how many times ListProducts was called.
func (m *Mock) ListCalls() int { return int(m.listCalls.Load()) }

// SearchCalls returns how many times SearchProducts was called.
func (m *Mock) SearchCalls() int { return int(m.searchCalls.Load()) }

// FetchCalls returns how many times FetchCart was called.
func (m *Mock) FetchCalls() int { return int(m.fetchCalls.Load()) }

// UpsertCalls returns how many times UpsertCart was called.
func (m *Mock) UpsertCalls() int { return int(m.upsertCalls.Load()) }
