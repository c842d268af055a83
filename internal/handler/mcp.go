// MCP transport for the storefront gateway using the official MCP Go SDK.
// Exposes the same operations as the REST routes as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/session"
)

// === MCP Meta Types ===
// meta maps to HTTP headers:
// - Storefront-Session header → meta["storefront-session"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	Session string `json:"storefront-session,omitempty" jsonschema:"Storefront-Session header value (RFC 8941 dictionary with token, user and v)"`
}

// === MCP Tool Input Types ===

// ListProductsInput is the input schema for list_products.
type ListProductsInput struct {
	Meta MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
}

// SearchProductsInput is the input schema for search_products.
type SearchProductsInput struct {
	Meta MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	Text string  `json:"text" jsonschema:"search text matched against name and category"`
}

// ViewCartInput is the input schema for view_cart and order_summary.
type ViewCartInput struct {
	Meta MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	Meta             MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	ProductID        string  `json:"product_id" jsonschema:"product ID"`
	Quantity         int     `json:"qty,omitempty" jsonschema:"quantity to set, defaults to 1"`
	PreventDuplicate bool    `json:"prevent_duplicate,omitempty" jsonschema:"refuse when the product is already in the cart"`
}

// SetQuantityInput is the input schema for set_quantity.
type SetQuantityInput struct {
	Meta      MCPMeta `json:"meta,omitempty" jsonschema:"request metadata"`
	ProductID string  `json:"product_id" jsonschema:"product ID"`
	Quantity  int     `json:"qty" jsonschema:"new quantity, 0 removes the product"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront - browse the product catalog and manage a shopping cart. " +
				"Cart tools need meta.storefront-session with a token.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List the full product catalog.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_products",
		Description: "Search products by name or category. No matches returns an empty list.",
	}, h.mcpSearchProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_cart",
		Description: "Show the cart with product details and total.",
	}, h.mcpViewCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product to the cart. Requires a logged-in session.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_quantity",
		Description: "Set the quantity of a product in the cart. Quantity 0 removes it.",
	}, h.mcpSetQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "order_summary",
		Description: "Show the order details: product count, subtotal, shipping and total.",
	}, h.mcpOrderSummary)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListProductsInput,
) (*mcp.CallToolResult, *ProductsOutput, error) {
	rec := &notice.Recorder{}
	products, err := h.svc.Products(ctx, rec)
	if err != nil {
		return nil, nil, h.mcpError(err, rec)
	}
	return nil, &ProductsOutput{Products: toProductViews(products), Notices: nonNil(rec.Notices())}, nil
}

func (h *Handler) mcpSearchProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchProductsInput,
) (*mcp.CallToolResult, *ProductsOutput, error) {
	rec := &notice.Recorder{}
	products, err := h.svc.Search(ctx, rec, input.Text)
	if err != nil {
		return nil, nil, h.mcpError(err, rec)
	}
	return nil, &ProductsOutput{Products: toProductViews(products), Notices: nonNil(rec.Notices())}, nil
}

func (h *Handler) mcpViewCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	sess, err := h.mcpSession(input.Meta)
	if err != nil {
		return nil, nil, err
	}

	rec := &notice.Recorder{}
	cart, err := h.svc.Cart(ctx, rec, sess)
	if err != nil {
		return nil, nil, h.mcpError(err, rec)
	}
	out := toCartOutput(cart, rec.Notices())
	return nil, &out, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	sess, err := h.mcpSession(input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}

	rec := &notice.Recorder{}
	cart, err := h.svc.AddToCart(ctx, rec, sess, input.ProductID, qty, input.PreventDuplicate)
	if err != nil {
		return nil, nil, h.mcpError(err, rec)
	}
	out := toCartOutput(cart, rec.Notices())
	return nil, &out, nil
}

func (h *Handler) mcpSetQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetQuantityInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	sess, err := h.mcpSession(input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if input.ProductID == "" {
		return nil, nil, fmt.Errorf("product_id is required")
	}

	rec := &notice.Recorder{}
	cart, err := h.svc.SetQuantity(ctx, rec, sess, input.ProductID, input.Quantity)
	if err != nil {
		return nil, nil, h.mcpError(err, rec)
	}
	out := toCartOutput(cart, rec.Notices())
	return nil, &out, nil
}

func (h *Handler) mcpOrderSummary(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ViewCartInput,
) (*mcp.CallToolResult, *SummaryOutput, error) {
	sess, err := h.mcpSession(input.Meta)
	if err != nil {
		return nil, nil, err
	}

	rec := &notice.Recorder{}
	summary, err := h.svc.Summary(ctx, rec, sess)
	if err != nil {
		return nil, nil, h.mcpError(err, rec)
	}
	return nil, &SummaryOutput{Summary: toSummaryView(summary), Notices: nonNil(rec.Notices())}, nil
}

// mcpError converts service errors to MCP-friendly errors. The first notice
// stands in for an APIError without a message.
func (h *Handler) mcpError(err error, rec *notice.Recorder) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if notices := rec.Notices(); message == "" && len(notices) > 0 {
			message = notices[0].Message
		}
		return fmt.Errorf("%s: %s", apiErr.Code, message)
	}
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// mcpSession decodes meta.storefront-session. Absent means anonymous.
func (h *Handler) mcpSession(meta MCPMeta) (model.Session, error) {
	if meta.Session == "" {
		return model.Session{}, nil
	}

	hdr, err := session.ParseHeader(meta.Session)
	if err != nil {
		return model.Session{}, fmt.Errorf("%s: %v", session.CodeInvalidHeader, err)
	}
	if err := session.CheckVersion(h.version, hdr.Version); err != nil {
		var verErr *session.VersionError
		if errors.As(err, &verErr) {
			return model.Session{}, fmt.Errorf("%s: %s", verErr.Code, verErr.Message)
		}
		return model.Session{}, fmt.Errorf("%s: %v", session.CodeVersionUnsupported, err)
	}
	return hdr.Session, nil
}
