// internal/inventory/implementation.go
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// service implements the Service interface.
type service struct {
	db *sqlx.DB
}

// NewService creates a new item catalog service instance.
func NewService(db *sqlx.DB) Service {
	return &service{db: db}
}

// CreateItem adds a new item to the catalog.
func (s *service) CreateItem(ctx context.Context, in ItemInput) (*Item, error) {
	item := &Item{}
	err := s.db.GetContext(ctx, item, `
		INSERT INTO items (code, name, category_id, stock, location, description, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, code, name, category_id, stock, location, description, active, created_at, updated_at
	`, in.Code, in.Name, in.CategoryID, in.Stock, in.Location, in.Description, in.Active)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("code %q: %w", in.Code, ErrDuplicateCode)
		}
		return nil, fmt.Errorf("create item: %w", err)
	}
	return item, nil
}

// GetItem retrieves an item by its id.
func (s *service) GetItem(ctx context.Context, id int64) (*Item, error) {
	item := &Item{}
	err := s.db.GetContext(ctx, item, `
		SELECT id, code, name, category_id, stock, location, description, active, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// ListItems returns catalog items, newest first.
func (s *service) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	query := `
		SELECT id, code, name, category_id, stock, location, description, active, created_at, updated_at
		FROM items`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	items := []Item{}
	if err := s.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpdateItem rewrites item metadata and the absolute stock level. Restock
// through this path is an administrative correction; loan traffic moves
// stock only through the ledger's transactional adjustment.
func (s *service) UpdateItem(ctx context.Context, id int64, in ItemInput) (*Item, error) {
	item := &Item{}
	err := s.db.GetContext(ctx, item, `
		UPDATE items
		SET code = $1, name = $2, category_id = $3, stock = $4, location = $5,
		    description = $6, active = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING id, code, name, category_id, stock, location, description, active, created_at, updated_at
	`, in.Code, in.Name, in.CategoryID, in.Stock, in.Location, in.Description, in.Active, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("code %q: %w", in.Code, ErrDuplicateCode)
		}
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	return item, nil
}

// DeleteItem removes an item that no loan references.
func (s *service) DeleteItem(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var referenced bool
	if err := tx.GetContext(ctx, &referenced, `SELECT EXISTS (SELECT 1 FROM loans WHERE item_id = $1)`, id); err != nil {
		return fmt.Errorf("check item %d references: %w", id, err)
	}
	if referenced {
		return fmt.Errorf("item %d: %w", id, ErrItemInUse)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("item %d: %w", id, ErrItemNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ItemNames resolves display names for a set of item ids.
func (s *service) ItemNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := s.db.QueryxContext(ctx, `SELECT id, name FROM items WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve item names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan item name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// CreateCategory adds a category.
func (s *service) CreateCategory(ctx context.Context, name string) (*Category, error) {
	c := &Category{}
	err := s.db.GetContext(ctx, c, `
		INSERT INTO categories (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at
	`, name)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories.
func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	cats := []Category{}
	err := s.db.SelectContext(ctx, &cats, `
		SELECT id, name, created_at, updated_at
		FROM categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// DeleteCategory removes a category; referencing items fall back to
// uncategorized via ON DELETE SET NULL.
func (s *service) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("category %d: %w", id, ErrCategoryNotFound)
	}
	return nil
}

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}
