// internal/store/schema.go
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the record-store layout. The stock CHECK backs up the
// application-level non-negativity guard; loan_audit rows outlive their
// loan on purpose, so deletions stay traceable.
const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS items (
	id BIGSERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
	stock INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
	location TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS students (
	id BIGSERIAL PRIMARY KEY,
	nisin TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	major TEXT NOT NULL DEFAULT '',
	cohort TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS teachers (
	id BIGSERIAL PRIMARY KEY,
	nip TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	borrower_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('student', 'teacher')),
	item_id BIGINT NOT NULL REFERENCES items(id),
	borrow_date DATE NOT NULL,
	due_date DATE NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('active', 'returned', 'expired')),
	added_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_loans_status ON loans (status);
CREATE INDEX IF NOT EXISTS idx_loans_item ON loans (item_id);

CREATE TABLE IF NOT EXISTS loan_audit (
	id BIGSERIAL PRIMARY KEY,
	loan_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_loan_audit_loan ON loan_audit (loan_id);
`

// Migrate creates the record-store tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
