// Package adapter defines the interface the storefront core uses to reach the
// remote storefront service. The HTTP implementation lives in internal/remote.
package adapter

import (
	"context"

	"storefront/internal/model"
)

// Storefront abstracts the remote storefront API.
//
// Implementations classify every failure into the model error taxonomy:
// model.ErrNotFound, model.ErrServiceFault (APIError with the server message)
// or model.ErrUnreachable. Callers match with errors.Is and never retry.
type Storefront interface {
	// ListProducts returns the full catalog.
	// GET /products
	ListProducts(ctx context.Context) ([]model.Product, error)

	// SearchProducts returns products matching text. A 404 from the service
	// is reported as model.ErrNotFound ("no matches").
	// GET /products/search?value=<text>
	SearchProducts(ctx context.Context, text string) ([]model.Product, error)

	// FetchCart returns the caller's cart records.
	// GET /cart with bearer token
	FetchCart(ctx context.Context, token string) ([]model.CartRecord, error)

	// UpsertCart sets the quantity of one product and returns the full,
	// updated cart. The service creates, updates or removes the record.
	// POST /cart {productId, qty} with bearer token
	UpsertCart(ctx context.Context, token string, req model.UpsertCartRequest) ([]model.CartRecord, error)
}
