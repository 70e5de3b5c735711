// internal/inventory/domain.go
package inventory

import (
	"errors"
	"time"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrItemUnavailable = errors.New("item not available")
	ErrItemInUse       = errors.New("item is referenced by loans")
	ErrDuplicateCode   = errors.New("item code already in use")

	ErrCategoryNotFound = errors.New("category not found")
)

// Availability labels derived from the stock counter.
const (
	Available = "available"
	Exhausted = "exhausted"
)

// Item is an inventory record. Stock is the source of truth for
// availability; the label is computed, never stored.
type Item struct {
	ID          int64     `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Name        string    `json:"name" db:"name"`
	CategoryID  *int64    `json:"category_id,omitempty" db:"category_id"`
	Stock       int       `json:"stock" db:"stock"`
	Location    string    `json:"location,omitempty" db:"location"`
	Description string    `json:"description,omitempty" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Availability projects the stock counter onto the caller-facing label.
func (i Item) Availability() string {
	if i.Stock > 0 {
		return Available
	}
	return Exhausted
}

// Borrowable reports whether a loan may take a unit of this item.
func (i Item) Borrowable() bool {
	return i.Active && i.Stock > 0
}

// Category groups inventory items.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
