package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"shop-miniapp/internal/host"
	"shop-miniapp/internal/model"
	"shop-miniapp/internal/session"
)

// handleStartSession opens the caller's session, replacing a closed one.
// A guest without a live token gets a new session and token.
// POST /api/session
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start(host.IdentityFromContext(r.Context()), r.Header.Get(host.SessionHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}
	setToken(w, sess)
	h.writeJSON(w, http.StatusOK, sessionResponse{View: sess.View()})
}

// handleGetSession renders the caller's session.
// GET /api/session
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionFor(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{View: sess.View()})
}

// handleEndSession closes and forgets the caller's session.
// DELETE /api/session
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := host.IdentityFromContext(ctx)

	if !h.sessions.End(ctx, id, r.Header.Get(host.SessionHeader)) {
		h.writeError(w, model.NewNotFoundError("session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddItem puts one unit of a product in the cart.
// POST /api/session/items/{id}
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.Add(ctx, productID)
	})
}

// handleRemoveItem takes one unit of a product out of the cart.
// DELETE /api/session/items/{id}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.Remove(ctx, productID)
	})
}

// handleOpenCart shows the cart.
// POST /api/session/cart/open
func (h *Handler) handleOpenCart(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.OpenCart(ctx)
	})
}

// handleCloseCart returns to the catalog.
// POST /api/session/cart/close
func (h *Handler) handleCloseCart(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.CloseCart(ctx)
	})
}

// contactRequest is the order form.
type contactRequest struct {
	Contact string `json:"contact"`
	Comment string `json:"comment"`
}

// handleSetContact records the order form fields.
// PUT /api/session/contact
func (h *Handler) handleSetContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.SetContact(ctx, req.Contact, req.Comment)
	})
}

// handleProceed validates the contact and opens payment.
// POST /api/session/proceed
func (h *Handler) handleProceed(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.Proceed(ctx)
	})
}

// handleBack returns from payment to the cart.
// POST /api/session/back
func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		return sess.Flow.Back(ctx)
	})
}

// handleConfirm submits the order. Blocks until the backend answers.
// POST /api/session/confirm
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		h.logger.InfoContext(ctx, "confirming payment",
			slog.Int64("user_id", sess.Identity.UserID),
		)
		// A dropped connection must not abandon an order the backend may
		// already have; only the submit timeout or session end can.
		return sess.Flow.ConfirmPayment(context.WithoutCancel(ctx))
	})
}

// handleClickMainButton taps the host main button: whatever action is bound
// for the current stage runs. Rejections surface as notices and last_error
// in the view, not as an error status.
// POST /api/session/main-button/click
func (h *Handler) handleClickMainButton(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context, sess *session.Session) error {
		fired := sess.ClickMainButton(context.WithoutCancel(ctx))
		h.logger.DebugContext(ctx, "main button clicked", slog.Int("handlers", fired))
		return nil
	})
}

// act runs fn against the caller's session and writes the resulting view.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, *session.Session) error) {
	ctx := r.Context()

	sess, err := h.sessionFor(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := fn(ctx, sess); err != nil {
		h.writeSessionError(w, sess, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{View: sess.View()})
}

func pathProductID(r *http.Request) (int, error) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("id", "product ID must be a positive integer")
	}
	return id, nil
}
