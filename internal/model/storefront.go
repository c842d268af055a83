package model

import (
	"github.com/shopspring/decimal"
)

// Product is a purchasable catalog entry. Server-authoritative; the client
// never mutates one after decoding it.
type Product struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Cost     decimal.Decimal `json:"cost"`
	Rating   int             `json:"rating"` // 0-5
	Image    string          `json:"image"`
}

// CartRecord is the sparse server representation of one cart entry.
// A record with Quantity <= 0 is treated as absent.
type CartRecord struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"qty"`
}

// CartLineItem is a CartRecord joined with its Product. Recomputed on every
// merge; the record's fields win over the product's.
type CartLineItem struct {
	Product
	ProductID string `json:"productId"`
	Quantity  int    `json:"qty"`
}

// LineTotal returns Cost × Quantity for the item.
func (i CartLineItem) LineTotal() decimal.Decimal {
	return LineCost(i.Cost, i.Quantity)
}

// Session is the caller's identity on the storefront service.
// Passed explicitly to every operation that needs it.
type Session struct {
	Token    string `json:"token" toml:"token"`
	Username string `json:"username" toml:"username"`
}

// Authenticated reports whether the session carries a bearer token.
// Without one, cart operations are unavailable but browsing still works.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// UpsertCartRequest is the body of POST /cart.
type UpsertCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"qty"`
}

// NormalizeRecords drops absent records (quantity <= 0) and collapses duplicate
// product IDs, keeping the first occurrence. Always returns a non-nil slice.
func NormalizeRecords(records []CartRecord) []CartRecord {
	out := make([]CartRecord, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Quantity <= 0 || seen[r.ProductID] {
			continue
		}
		seen[r.ProductID] = true
		out = append(out, r)
	}
	return out
}

// CloneRecords returns a copy that callers may not use to mutate the original.
func CloneRecords(records []CartRecord) []CartRecord {
	if records == nil {
		return nil
	}
	out := make([]CartRecord, len(records))
	copy(out, records)
	return out
}

// CloneProducts returns a copy of products.
func CloneProducts(products []Product) []Product {
	if products == nil {
		return nil
	}
	out := make([]Product, len(products))
	copy(out, products)
	return out
}
