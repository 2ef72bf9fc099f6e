package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"shop-miniapp/internal/model"
)

// productsPath is the backend product listing endpoint.
const productsPath = "/api/products"

// Client fetches the product list from the shop backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a client for the backend at baseURL.
// apiKey is sent as X-Api-Key when non-empty.
func NewClient(httpClient *http.Client, baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}, nil
}

// FetchProducts returns the backend's product list in display order.
// The backend answers with either a bare JSON array or {"products": [...]}.
func (c *Client) FetchProducts(ctx context.Context) ([]model.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+productsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewNetworkError("product backend", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewServerError(resp.StatusCode, fmt.Sprintf("product listing failed with status %d", resp.StatusCode))
	}

	products, err := decodeProducts(body)
	if err != nil {
		return nil, fmt.Errorf("decoding products: %w", err)
	}
	return products, nil
}

func decodeProducts(body []byte) ([]model.Product, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var products []model.Product
		if err := json.Unmarshal(body, &products); err != nil {
			return nil, err
		}
		return products, nil
	}

	var wrapped struct {
		Products []model.Product `json:"products"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Products, nil
}

// Load fetches the catalog once. Any failure, or an empty listing, falls
// back to Default and is logged; the shop stays usable without a backend.
func Load(ctx context.Context, c *Client, logger *slog.Logger) *Catalog {
	if c == nil {
		logger.Warn("no product backend configured, using default catalog")
		return Default()
	}

	products, err := c.FetchProducts(ctx)
	if err != nil {
		logger.Warn("product fetch failed, using default catalog",
			slog.String("error", err.Error()))
		return Default()
	}

	valid := products[:0]
	for _, p := range products {
		if p.ID == 0 || p.Price <= 0 {
			logger.Warn("skipping invalid product",
				slog.Int("id", p.ID),
				slog.Int64("price", int64(p.Price)))
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		logger.Warn("backend returned no products, using default catalog")
		return Default()
	}

	logger.Info("catalog loaded", slog.Int("products", len(valid)))
	return New(valid)
}
