package handler

import (
	"net/http"

	"shop-miniapp/internal/model"
)

// handleListProducts returns the catalog, optionally filtered.
// GET /api/products?category=bots
func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	cat := h.sessions.Catalog()
	category := r.URL.Query().Get("category")
	if category == "" {
		category = model.CategoryAll
	}

	products := cat.Filter(category)
	if products == nil {
		products = []model.Product{}
	}

	h.writeJSON(w, http.StatusOK, productsResponse{
		Category:   category,
		Categories: append([]string{model.CategoryAll}, cat.Categories()...),
		Products:   products,
	})
}

type productsResponse struct {
	Category   string          `json:"category"`
	Categories []string        `json:"categories"`
	Products   []model.Product `json:"products"`
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Products: h.sessions.Catalog().Len(),
		Sessions: h.sessions.Len(),
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Products int    `json:"products"`
	Sessions int    `json:"sessions"`
}
