// Package handler provides the HTTP and MCP surface of the storefront gateway.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/session"
	"storefront/internal/storefront"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc     *storefront.Service
	version string
	logger  *slog.Logger
}

// New creates a Handler serving svc. Sessions newer than
// session.ClientVersion are refused.
func New(svc *storefront.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		version: session.ClientVersion,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/healthz", h.handleHealth)

	// MCP carries the session in tool metadata, not in the header.
	r.Handle("/mcp", h.NewMCPHandler())

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(h.version, h.logger))

		r.Get("/products", h.handleProducts)
		r.Get("/products/search", h.handleSearch)

		r.Get("/cart", h.handleCart)
		r.Post("/cart", h.handleAddToCart)
		r.Put("/cart/{productID}", h.handleSetQuantity)
		r.Get("/cart/summary", h.handleSummary)
	})
}

// Router returns a chi router with all routes registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response together with the notices raised while
// handling the request.
func (h *Handler) writeError(w http.ResponseWriter, err error, notices []notice.Notice) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	message := apiErr.Message
	if message == "" && len(notices) > 0 {
		message = notices[0].Message
	}

	h.writeJSON(w, statusFor(apiErr), errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: message,
		},
		Notices: nonNil(notices),
	})
}

// statusFor maps an error to the gateway's response status. Upstream 5xx
// become 502; upstream 4xx pass through.
func statusFor(apiErr *model.APIError) int {
	if apiErr.Code == "SERVICE_ERROR" && apiErr.StatusCode >= http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	if apiErr.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return apiErr.StatusCode
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error   errorBody       `json:"error"`
	Notices []notice.Notice `json:"notices"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

// decodeJSON reads JSON from the request body into v.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
