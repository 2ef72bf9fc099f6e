// Package handler provides the HTTP and MCP surfaces of the shop mini-app.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"shop-miniapp/internal/host"
	"shop-miniapp/internal/model"
	"shop-miniapp/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// New creates a Handler serving the sessions of the given manager.
func New(sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Session routes act on the caller's session, identified by the
// host.IdentityHeader; wrap the mux with host.Middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Catalog
	mux.HandleFunc("GET /api/products", h.handleListProducts)

	// Session lifecycle
	mux.HandleFunc("POST /api/session", h.handleStartSession)
	mux.HandleFunc("GET /api/session", h.handleGetSession)
	mux.HandleFunc("DELETE /api/session", h.handleEndSession)

	// Cart
	mux.HandleFunc("POST /api/session/items/{id}", h.handleAddItem)
	mux.HandleFunc("DELETE /api/session/items/{id}", h.handleRemoveItem)
	mux.HandleFunc("POST /api/session/cart/open", h.handleOpenCart)
	mux.HandleFunc("POST /api/session/cart/close", h.handleCloseCart)

	// Checkout
	mux.HandleFunc("PUT /api/session/contact", h.handleSetContact)
	mux.HandleFunc("POST /api/session/proceed", h.handleProceed)
	mux.HandleFunc("POST /api/session/back", h.handleBack)
	mux.HandleFunc("POST /api/session/confirm", h.handleConfirm)
	mux.HandleFunc("POST /api/session/main-button/click", h.handleClickMainButton)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// writeSessionError reports a failed session action. The body is the session
// view with the error attached, so the web view can re-render from a single
// response whatever the outcome.
func (h *Handler) writeSessionError(w http.ResponseWriter, sess *session.Session, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, sessionResponse{
		View: sess.View(),
		Error: &errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return model.NewInternalError(err)
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sessionResponse is the body of every session route.
type sessionResponse struct {
	session.View
	Error *errorBody `json:"error,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 64KB; the largest body is
// a contact form.
const MaxRequestBodySize = 64 << 10

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// sessionFor returns the caller's session, creating it on first contact.
// Guests are told their session token in the response header.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	sess, err := h.sessions.Get(host.IdentityFromContext(r.Context()), r.Header.Get(host.SessionHeader))
	if err != nil {
		return nil, err
	}
	setToken(w, sess)
	return sess, nil
}

func setToken(w http.ResponseWriter, sess *session.Session) {
	if sess.Token != "" {
		w.Header().Set(host.SessionHeader, sess.Token)
	}
}
