package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"shop-miniapp/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefault(t *testing.T) {
	c := Default()

	if c.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", c.Len())
	}

	wantPrices := map[int]model.Price{1: 2500, 2: 4000, 3: 1000, 4: 3000, 5: 5000, 6: 500}
	for id, want := range wantPrices {
		p, ok := c.Product(id)
		if !ok {
			t.Errorf("Product(%d) missing", id)
			continue
		}
		if p.Price != want {
			t.Errorf("Product(%d).Price = %d, want %d", id, p.Price, want)
		}
	}

	if _, ok := c.Product(99); ok {
		t.Error("Product(99) should not exist")
	}
}

func TestFilter(t *testing.T) {
	c := Default()

	tests := []struct {
		category string
		wantIDs  []int
	}{
		{"all", []int{1, 2, 3, 4, 5, 6}},
		{"", []int{1, 2, 3, 4, 5, 6}},
		{"bots", []int{1, 3, 4}},
		{"crm", []int{2, 5}},
		{"other", []int{6}},
		{"games", nil},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got := c.Filter(tt.category)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Filter(%q) len = %d, want %d", tt.category, len(got), len(tt.wantIDs))
			}
			for i, p := range got {
				if p.ID != tt.wantIDs[i] {
					t.Errorf("Filter(%q)[%d].ID = %d, want %d", tt.category, i, p.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestCategories(t *testing.T) {
	got := Default().Categories()
	want := []string{"bots", "crm", "other"}
	if len(got) != len(want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Categories()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNew_DropsDuplicateIDs(t *testing.T) {
	c := New([]model.Product{
		{ID: 1, Title: "first", Price: 10},
		{ID: 1, Title: "second", Price: 20},
	})
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	p, _ := c.Product(1)
	if p.Title != "first" {
		t.Errorf("Title = %q, want first", p.Title)
	}
}

func TestProducts_ReturnsCopy(t *testing.T) {
	c := Default()
	list := c.Products()
	list[0].Price = 1

	p, _ := c.Product(list[0].ID)
	if p.Price == 1 {
		t.Error("mutating Products() result changed the catalog")
	}
}

func TestFetchProducts(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantLen int
		wantErr string
	}{
		{
			name:    "bare array",
			status:  http.StatusOK,
			body:    `[{"id":1,"title":"A","price":2500,"category":"bots"},{"id":2,"title":"B","price":"4000","category":"crm"}]`,
			wantLen: 2,
		},
		{
			name:    "wrapped",
			status:  http.StatusOK,
			body:    `{"products":[{"id":7,"title":"C","price":100}]}`,
			wantLen: 1,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `boom`,
			wantErr: model.CodeServer,
		},
		{
			name:    "bad json",
			status:  http.StatusOK,
			body:    `{"products":`,
			wantErr: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != "/api/products" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if got := r.Header.Get("X-Api-Key"); got != "secret" {
					t.Errorf("X-Api-Key = %q, want secret", got)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewClient(srv.Client(), srv.URL+"/", "secret")
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}

			got, err := client.FetchProducts(context.Background())
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("FetchProducts() expected error containing %q", tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchProducts() error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestFetchProducts_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, _ := NewClient(nil, url, "")
	_, err := client.FetchProducts(context.Background())

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error = %T %v, want *model.APIError", err, err)
	}
	if apiErr.Code != model.CodeNetwork {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.CodeNetwork)
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(nil, "", ""); err == nil {
		t.Error("NewClient() expected error for empty URL")
	}
}

func TestLoad(t *testing.T) {
	t.Run("backend products", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"id":10,"title":"X","price":10},{"id":11,"title":"free","price":0}]`))
		}))
		defer srv.Close()

		client, _ := NewClient(srv.Client(), srv.URL, "")
		c := Load(context.Background(), client, testLogger())

		if c.Len() != 1 {
			t.Fatalf("Len() = %d, want 1 (zero-price product skipped)", c.Len())
		}
		if _, ok := c.Product(10); !ok {
			t.Error("Product(10) missing")
		}
	})

	t.Run("backend down falls back", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client, _ := NewClient(srv.Client(), srv.URL, "")
		c := Load(context.Background(), client, testLogger())
		if c.Len() != 6 {
			t.Errorf("Len() = %d, want default catalog", c.Len())
		}
	})

	t.Run("empty listing falls back", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		client, _ := NewClient(srv.Client(), srv.URL, "")
		if c := Load(context.Background(), client, testLogger()); c.Len() != 6 {
			t.Errorf("Len() = %d, want default catalog", c.Len())
		}
	})

	t.Run("no client", func(t *testing.T) {
		if c := Load(context.Background(), nil, testLogger()); c.Len() != 6 {
			t.Errorf("Len() = %d, want default catalog", c.Len())
		}
	})
}
