// MCP transport for the shop using the official MCP Go SDK.
// Exposes the same session actions as the REST routes as MCP tools, so an
// agent can shop on a user's behalf.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"shop-miniapp/internal/host"
	"shop-miniapp/internal/model"
	"shop-miniapp/internal/session"
)

// === MCP Meta Types ===
// meta carries what HTTP callers send as headers.
// - Miniapp-Host header → meta["miniapp-host"]
// - Miniapp-Session header → meta["miniapp-session"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	MiniappHost    string `json:"miniapp-host,omitempty" jsonschema:"host identity dictionary such as user=42, name=Ann"`
	MiniappSession string `json:"miniapp-session,omitempty" jsonschema:"guest session token from a previous session_token"`
}

// === MCP Tool Input/Output Types ===

// ListProductsInput is the input schema for list_products.
type ListProductsInput struct {
	Category string `json:"category,omitempty" jsonschema:"category filter: all, bots, crm or other"`
}

// ListProductsOutput is the catalog listing.
type ListProductsOutput struct {
	Category   string          `json:"category"`
	Categories []string        `json:"categories"`
	Products   []model.Product `json:"products"`
}

// SessionInput is the input of tools that only need the session.
type SessionInput struct {
	Meta *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata; omitted means guest"`
}

// ProductInput is the input of add_to_cart and remove_from_cart.
type ProductInput struct {
	Meta      *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata; omitted means guest"`
	ProductID int      `json:"product_id" jsonschema:"catalog product ID"`
}

// ContactInput is the input of set_contact.
type ContactInput struct {
	Meta    *MCPMeta `json:"meta,omitempty" jsonschema:"request metadata; omitted means guest"`
	Contact string   `json:"contact" jsonschema:"phone number or @username, at least 5 characters"`
	Comment string   `json:"comment,omitempty" jsonschema:"free-form order comment"`
}

// SessionOutput is the session view as returned to agents.
type SessionOutput struct {
	Stage          string           `json:"stage"`
	SessionToken   string           `json:"session_token,omitempty"`
	Lines          []LineOutput     `json:"lines"`
	Total          int64            `json:"total"`
	TotalLabel     string           `json:"total_label"`
	Contact        string           `json:"contact"`
	Comment        string           `json:"comment"`
	MainButton     host.ButtonState `json:"main_button"`
	Notices        []NoticeOutput   `json:"notices"`
	LastError      *errorBody       `json:"last_error,omitempty"`
	CloseRequested bool             `json:"close_requested"`
}

// LineOutput is one cart line.
type LineOutput struct {
	ProductID int    `json:"product_id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// NoticeOutput is a notice the host would have shown.
type NoticeOutput struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewMCPServer creates an MCP server with shop tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shop-miniapp",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Shop mini-app. Browse products, fill the cart, then press the main button " +
				"to move from cart to payment to a placed order. get_session shows what the main button does next.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List catalog products, optionally filtered by category.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session",
		Description: "Get the current cart, checkout stage and main button state.",
	}, h.sessionTool(func(ctx context.Context, s *session.Session, _ SessionInput) error { return nil }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add one unit of a product to the cart.",
	}, h.productTool(func(ctx context.Context, s *session.Session, id int) error { return s.Flow.Add(ctx, id) }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove one unit of a product from the cart. Removing the last item closes the cart.",
	}, h.productTool(func(ctx context.Context, s *session.Session, id int) error { return s.Flow.Remove(ctx, id) }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_cart",
		Description: "Open the cart. Does nothing when the cart is empty.",
	}, h.sessionTool(func(ctx context.Context, s *session.Session, _ SessionInput) error { return s.Flow.OpenCart(ctx) }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "close_cart",
		Description: "Close the cart and return to the catalog.",
	}, h.sessionTool(func(ctx context.Context, s *session.Session, _ SessionInput) error { return s.Flow.CloseCart(ctx) }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_contact",
		Description: "Fill the order form while the cart is open.",
	}, h.mcpSetContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "proceed",
		Description: "Validate the contact and open the payment screen.",
	}, h.sessionTool(func(ctx context.Context, s *session.Session, _ SessionInput) error { return s.Flow.Proceed(ctx) }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "back",
		Description: "Return from the payment screen to the cart.",
	}, h.sessionTool(func(ctx context.Context, s *session.Session, _ SessionInput) error { return s.Flow.Back(ctx) }))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "click_main_button",
		Description: "Press the host main button. On the payment screen this places the order.",
	}, h.sessionTool(func(ctx context.Context, s *session.Session, _ SessionInput) error {
		s.ClickMainButton(context.WithoutCancel(ctx))
		return nil
	}))

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
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
) (*mcp.CallToolResult, ListProductsOutput, error) {
	cat := h.sessions.Catalog()
	category := input.Category
	if category == "" {
		category = model.CategoryAll
	}

	products := cat.Filter(category)
	if products == nil {
		products = []model.Product{}
	}
	return nil, ListProductsOutput{
		Category:   category,
		Categories: append([]string{model.CategoryAll}, cat.Categories()...),
		Products:   products,
	}, nil
}

func (h *Handler) mcpSetContact(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ContactInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	sess, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	if err := sess.Flow.SetContact(ctx, input.Contact, input.Comment); err != nil {
		return nil, SessionOutput{}, h.mcpError(err)
	}
	return nil, toSessionOutput(sess.View()), nil
}

// sessionTool adapts a session action to an MCP tool handler.
func (h *Handler) sessionTool(
	action func(context.Context, *session.Session, SessionInput) error,
) mcp.ToolHandlerFor[SessionInput, SessionOutput] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
		sess, err := h.mcpSession(ctx, input.Meta)
		if err != nil {
			return nil, SessionOutput{}, err
		}
		if err := action(ctx, sess, input); err != nil {
			return nil, SessionOutput{}, h.mcpError(err)
		}
		return nil, toSessionOutput(sess.View()), nil
	}
}

// productTool adapts a per-product cart action to an MCP tool handler.
func (h *Handler) productTool(
	action func(context.Context, *session.Session, int) error,
) mcp.ToolHandlerFor[ProductInput, SessionOutput] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ProductInput) (*mcp.CallToolResult, SessionOutput, error) {
		if input.ProductID <= 0 {
			return nil, SessionOutput{}, fmt.Errorf("product_id is required")
		}
		sess, err := h.mcpSession(ctx, input.Meta)
		if err != nil {
			return nil, SessionOutput{}, err
		}
		if err := action(ctx, sess, input.ProductID); err != nil {
			return nil, SessionOutput{}, h.mcpError(err)
		}
		return nil, toSessionOutput(sess.View()), nil
	}
}

// mcpSession resolves the session named by meta.miniapp-host, or for guests
// by meta.miniapp-session. A guest without a live token gets a new session
// whose token comes back as session_token. A malformed identity is an error,
// unlike over HTTP, because an agent can fix its request.
func (h *Handler) mcpSession(ctx context.Context, meta *MCPMeta) (*session.Session, error) {
	id := model.GuestIdentity()
	var token string
	if meta != nil {
		token = meta.MiniappSession
	}
	if meta != nil && meta.MiniappHost != "" {
		parsed, err := host.ParseIdentityHeader(meta.MiniappHost)
		if err != nil {
			return nil, fmt.Errorf("%s: meta.miniapp-host: %v", model.CodeValidation, err)
		}
		id = parsed
	}

	sess, err := h.sessions.Get(id, token)
	if err != nil {
		return nil, h.mcpError(err)
	}
	return sess, nil
}

// mcpError converts session errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

func toSessionOutput(v session.View) SessionOutput {
	out := SessionOutput{
		Stage:          v.Stage,
		SessionToken:   v.Token,
		Lines:          make([]LineOutput, 0, len(v.Lines)),
		Total:          int64(v.Total),
		TotalLabel:     v.TotalLabel,
		Contact:        v.Contact,
		Comment:        v.Comment,
		MainButton:     v.MainButton,
		Notices:        make([]NoticeOutput, 0, len(v.Notices)),
		CloseRequested: v.CloseRequested,
	}
	for _, l := range v.Lines {
		out.Lines = append(out.Lines, LineOutput{
			ProductID: l.ID,
			Title:     l.Title,
			Price:     int64(l.Price),
			Quantity:  l.Quantity,
			Subtotal:  int64(l.Subtotal),
		})
	}
	for _, n := range v.Notices {
		out.Notices = append(out.Notices, NoticeOutput{
			Kind:    string(n.Kind),
			Title:   n.Title,
			Message: n.Message,
			Code:    n.Code,
		})
	}
	if v.LastError != nil {
		out.LastError = &errorBody{Code: v.LastError.Code, Message: v.LastError.Message}
	}
	return out
}
