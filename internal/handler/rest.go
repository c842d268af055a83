package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/notice"
	"storefront/internal/session"
)

// addToCartRequest is the body of POST /cart. Quantity defaults to 1.
type addToCartRequest struct {
	ProductID        string `json:"productId"`
	Quantity         *int   `json:"qty,omitempty"`
	PreventDuplicate bool   `json:"preventDuplicate"`
}

// setQuantityRequest is the body of PUT /cart/{productID}.
type setQuantityRequest struct {
	Quantity int `json:"qty"`
}

// handleProducts returns the full catalog.
// GET /products
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	rec := &notice.Recorder{}
	products, err := h.svc.Products(r.Context(), rec)
	if err != nil {
		h.writeError(w, err, rec.Notices())
		return
	}
	h.writeJSON(w, http.StatusOK, ProductsOutput{
		Products: toProductViews(products),
		Notices:  nonNil(rec.Notices()),
	})
}

// handleSearch returns products matching ?value=. No matches is an empty list.
// GET /products/search?value=<text>
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	rec := &notice.Recorder{}
	products, err := h.svc.Search(r.Context(), rec, r.URL.Query().Get("value"))
	if err != nil {
		h.writeError(w, err, rec.Notices())
		return
	}
	h.writeJSON(w, http.StatusOK, ProductsOutput{
		Products: toProductViews(products),
		Notices:  nonNil(rec.Notices()),
	})
}

// handleCart returns the session's cart. Anonymous callers get an empty cart.
// GET /cart
func (h *Handler) handleCart(w http.ResponseWriter, r *http.Request) {
	rec := &notice.Recorder{}
	cart, err := h.svc.Cart(r.Context(), rec, session.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, err, rec.Notices())
		return
	}
	h.writeJSON(w, http.StatusOK, toCartOutput(cart, rec.Notices()))
}

// handleAddToCart adds a product to the session's cart.
// POST /cart
func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, nil)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	rec := &notice.Recorder{}
	cart, err := h.svc.AddToCart(r.Context(), rec, session.FromContext(r.Context()), req.ProductID, qty, req.PreventDuplicate)
	if err != nil {
		h.writeError(w, err, rec.Notices())
		return
	}
	h.writeJSON(w, http.StatusOK, toCartOutput(cart, rec.Notices()))
}

// handleSetQuantity sets a product's quantity; 0 removes it.
// PUT /cart/{productID}
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err, nil)
		return
	}

	rec := &notice.Recorder{}
	productID := chi.URLParam(r, "productID")
	cart, err := h.svc.SetQuantity(r.Context(), rec, session.FromContext(r.Context()), productID, req.Quantity)
	if err != nil {
		h.writeError(w, err, rec.Notices())
		return
	}
	h.writeJSON(w, http.StatusOK, toCartOutput(cart, rec.Notices()))
}

// handleSummary returns the order details for the session's cart.
// GET /cart/summary
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	rec := &notice.Recorder{}
	summary, err := h.svc.Summary(r.Context(), rec, session.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, err, rec.Notices())
		return
	}
	h.writeJSON(w, http.StatusOK, SummaryOutput{
		Summary: toSummaryView(summary),
		Notices: nonNil(rec.Notices()),
	})
}
