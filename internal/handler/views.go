package handler

import (
	"storefront/internal/cartsync"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/reconcile"
)

// Views flatten decimals to strings so MCP output schemas stay plain JSON.

type productView struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Cost     string `json:"cost"`
	Rating   int    `json:"rating"`
	Image    string `json:"image"`
}

type lineView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Cost      string `json:"cost"`
	Quantity  int    `json:"qty"`
	LineTotal string `json:"lineTotal"`
}

type summaryView struct {
	Products int    `json:"products"`
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

// ProductsOutput is returned by list_products and search_products.
type ProductsOutput struct {
	Products []productView   `json:"products"`
	Notices  []notice.Notice `json:"notices"`
}

// CartOutput is returned by view_cart, add_to_cart and set_quantity.
type CartOutput struct {
	Items   []lineView      `json:"items"`
	Total   string          `json:"total"`
	Notices []notice.Notice `json:"notices"`
}

// SummaryOutput is returned by order_summary.
type SummaryOutput struct {
	Summary summaryView     `json:"summary"`
	Notices []notice.Notice `json:"notices"`
}

func toProductViews(products []model.Product) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, productView{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Cost:     p.Cost.String(),
			Rating:   p.Rating,
			Image:    p.Image,
		})
	}
	return out
}

func toCartOutput(cart cartsync.Cart, notices []notice.Notice) CartOutput {
	items := make([]lineView, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, lineView{
			ProductID: item.ProductID,
			Name:      item.Name,
			Cost:      item.Cost.String(),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal().String(),
		})
	}
	return CartOutput{
		Items:   items,
		Total:   cart.Total().String(),
		Notices: nonNil(notices),
	}
}

func toSummaryView(s reconcile.OrderSummary) summaryView {
	return summaryView{
		Products: s.Products,
		Subtotal: s.Subtotal.String(),
		Shipping: s.Shipping.String(),
		Total:    s.Total.String(),
	}
}

func nonNil(notices []notice.Notice) []notice.Notice {
	if notices == nil {
		return []notice.Notice{}
	}
	return notices
}
