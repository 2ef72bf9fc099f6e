// Package catalog holds the product list shown in the shop and loads it from
// the backend.
package catalog

import (
	"shop-miniapp/internal/model"
)

// Catalog is an ordered, read-only product list. It implements cart.Catalog.
type Catalog struct {
	products []model.Product
	byID     map[int]int // product id → index in products
}

// New builds a catalog. Products keep their order; a later duplicate id
// is dropped.
func New(products []model.Product) *Catalog {
	c := &Catalog{byID: make(map[int]int, len(products))}
	for _, p := range products {
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c
}

// Product returns the product with the given id.
func (c *Catalog) Product(id int) (model.Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Product{}, false
	}
	return c.products[i], true
}

// Products returns every product in display order.
func (c *Catalog) Products() []model.Product {
	return append([]model.Product(nil), c.products...)
}

// Filter returns the products in category, in display order.
// model.CategoryAll and the empty string match everything.
func (c *Catalog) Filter(category string) []model.Product {
	if category == "" || category == model.CategoryAll {
		return c.Products()
	}
	var out []model.Product
	for _, p := range c.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}

// Default returns the built-in catalog used when the backend cannot be
// reached.
func Default() *Catalog {
	return New([]model.Product{
		{ID: 1, Title: "Telegram Shop", Price: 2500, Icon: "🛍", Category: "bots", Desc: "Catalog, cart and payment inside Telegram."},
		{ID: 2, Title: "CRM System", Price: 4000, Icon: "📊", Category: "crm", Desc: "Lead management and analytics for your business."},
		{ID: 3, Title: "Business Card Bot", Price: 1000, Icon: "📇", Category: "bots", Desc: "Answers questions, shares contacts and portfolio."},
		{ID: 4, Title: "Client Booking", Price: 3000, Icon: "📅", Category: "bots", Desc: "Slot booking, calendar and reminders."},
		{ID: 5, Title: "AI Assistant", Price: 5000, Icon: "🤖", Category: "crm", Desc: "GPT-powered support bot."},
		{ID: 6, Title: "Consultation", Price: 500, Icon: "👨‍💻", Category: "other", Desc: "One hour to work through your business task."},
	})
}
