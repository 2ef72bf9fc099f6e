// Package model defines data structures shared by the catalog, cart, checkout
// and backend clients.
package model

import "strings"

// === Catalog ===

// Product is a catalog entry as served by the backend.
// Immutable once fetched; the core only reads it.
type Product struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Price    Price  `json:"price"` // whole currency units, > 0
	Icon     string `json:"icon"`
	Category string `json:"category"`
	Desc     string `json:"desc"`
}

// CategoryAll matches every product in a catalog filter.
const CategoryAll = "all"

// === Host identity ===

// Identity describes the chat user the web view was opened for.
type Identity struct {
	UserID          int64  `json:"user_id"`
	DisplayName     string `json:"name"`
	PlatformVersion string `json:"platform_version,omitempty"`
}

// GuestIdentity is used when the host supplies no user.
func GuestIdentity() Identity {
	return Identity{UserID: 0, DisplayName: "Guest"}
}

// IsGuest reports whether this is the placeholder identity.
func (i Identity) IsGuest() bool {
	return i.UserID == 0
}

// DisplayNameOf joins first and last name the way the host presents users.
// Last name is optional.
func DisplayNameOf(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return first + " " + last
}

// === Order (outbound) ===

// Order is the payload posted to the order endpoint.
// Built once at submission time and never mutated afterwards.
type Order struct {
	UserID      int64       `json:"user_id"`
	Name        string      `json:"name"`
	ContactInfo string      `json:"contact_info"`
	Items       []OrderItem `json:"items"`
	Total       Price       `json:"total"`
	Comment     string      `json:"comment"`
}

// OrderItem is a product snapshot with the ordered quantity.
type OrderItem struct {
	Product
	Quantity int `json:"quantity"`
}

// === Notices ===

// NoticeKind classifies a user-facing notice.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
)

// Notice is a blocking message the host shows to the user (a popup, or a
// plain alert on older hosts).
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`
}

// NewErrorNotice creates an error notice with the standard title.
func NewErrorNotice(code, message string) Notice {
	return Notice{
		Kind:    NoticeError,
		Title:   "Error",
		Message: message,
		Code:    code,
	}
}
