// Package reconcile merges the sparse server cart with the product catalog
// and computes the totals shown for it.
// Every function here is pure: no I/O, no shared state, inputs never mutated.
package reconcile

import (
	"github.com/shopspring/decimal"

	"storefront/internal/model"
)

// Reconcile joins cart records with the catalog into display-ready line items.
//
// Output order follows records. A record whose product is not in the catalog
// (stale catalog, or a catalog narrowed by search) contributes nothing; this
// is not an error. A nil records slice yields an empty result.
func Reconcile(records []model.CartRecord, catalog []model.Product) []model.CartLineItem {
	items := make([]model.CartLineItem, 0, len(records))
	if len(records) == 0 || len(catalog) == 0 {
		return items
	}

	byID := make(map[string]model.Product, len(catalog))
	for _, p := range catalog {
		if _, dup := byID[p.ID]; !dup {
			byID[p.ID] = p
		}
	}

	for _, r := range records {
		product, ok := byID[r.ProductID]
		if !ok {
			continue
		}
		items = append(items, model.CartLineItem{
			Product:   product,
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
		})
	}
	return items
}

// TotalValue returns the sum of cost × quantity over items.
// Exact for fractional costs; nil or empty input is zero.
func TotalValue(items []model.CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ContainsProduct reports whether some record references productID.
// Used to refuse duplicate "add to cart" requests.
func ContainsProduct(records []model.CartRecord, productID string) bool {
	for _, r := range records {
		if r.ProductID == productID {
			return true
		}
	}
	return false
}

// TotalItems returns the number of units in the cart (sum of quantities).
func TotalItems(items []model.CartLineItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

// Subtotal returns the sum of unit costs, one per line regardless of quantity.
// This is the "Subtotal" row of the checkout order details.
func Subtotal(items []model.CartLineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Cost)
	}
	return sum
}

// OrderSummary is the read-only order details block shown at checkout.
type OrderSummary struct {
	Products int             `json:"products"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// Summarize builds the order details for items. Shipping is always free.
func Summarize(items []model.CartLineItem) OrderSummary {
	return OrderSummary{
		Products: TotalItems(items),
		Subtotal: Subtotal(items),
		Shipping: decimal.Zero,
		Total:    TotalValue(items),
	}
}

// RecordDiff describes how one cart snapshot differs from the previous one.
type RecordDiff struct {
	Added   []model.CartRecord // Products in next but not prev
	Removed []model.CartRecord // Products in prev but not next
	Changed []QuantityChange   // Products in both with different quantities
}

// QuantityChange is a product whose quantity moved between snapshots.
type QuantityChange struct {
	ProductID   string
	OldQuantity int
	NewQuantity int
}

// IsEmpty returns true if the snapshots hold the same records.
func (d *RecordDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffRecords computes what the server changed between two cart snapshots.
// Matching is by ProductID. Results keep the order of the snapshot they
// come from.
func DiffRecords(prev, next []model.CartRecord) *RecordDiff {
	diff := &RecordDiff{}

	prevByID := make(map[string]model.CartRecord, len(prev))
	for _, r := range prev {
		prevByID[r.ProductID] = r
	}
	nextByID := make(map[string]model.CartRecord, len(next))
	for _, r := range next {
		nextByID[r.ProductID] = r
	}

	for _, r := range next {
		old, exists := prevByID[r.ProductID]
		switch {
		case !exists:
			diff.Added = append(diff.Added, r)
		case old.Quantity != r.Quantity:
			diff.Changed = append(diff.Changed, QuantityChange{
				ProductID:   r.ProductID,
				OldQuantity: old.Quantity,
				NewQuantity: r.Quantity,
			})
		}
	}

	for _, r := range prev {
		if _, exists := nextByID[r.ProductID]; !exists {
			diff.Removed = append(diff.Removed, r)
		}
	}

	return diff
}
