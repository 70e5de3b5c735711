package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sipinjam/internal/directory"
	"sipinjam/internal/inventory"
	"sipinjam/internal/ledger"
)

// setupTestDB connects to PostgreSQL and skips the test when no server
// is reachable, so the suite stays runnable without one.
func setupTestDB(t testing.TB) *sqlx.DB {
	t.Helper()

	host := envOr("PGHOST", "localhost")
	port := envOr("PGPORT", "5432")
	user := envOr("PGUSER", "sipinjam")
	password := envOr("PGPASSWORD", "sipinjam")
	dbname := envOr("PGDATABASE", "sipinjam_test")

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sqlx.Open("postgres", connStr)
	require.NoError(t, err)

	if err := db.Ping(); err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	require.NoError(t, Migrate(context.Background(), db))
	t.Cleanup(func() {
		_, _ = db.Exec(`TRUNCATE loan_audit, loans, items, categories, students, teachers RESTART IDENTITY CASCADE`)
		db.Close()
	})
	return db
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func seedBorrowFixture(t *testing.T, db *sqlx.DB) (int64, string) {
	t.Helper()
	var itemID int64
	require.NoError(t, db.QueryRow(`
		INSERT INTO items (code, name, stock, active) VALUES ('BK-100', 'Atlas', 2, TRUE)
		RETURNING id
	`).Scan(&itemID))
	_, err := db.Exec(`
		INSERT INTO students (nisin, full_name, active) VALUES ('0051234567', 'Ani', TRUE)
	`)
	require.NoError(t, err)
	return itemID, "0051234567"
}

func TestPostgresBorrowRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	itemID, nisin := seedBorrowFixture(t, db)

	svc := ledger.NewService(NewPostgres(db), directory.NewResolver(nil))

	loan, err := svc.Borrow(ctx, ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: nisin,
		ItemID:     itemID,
		BorrowDate: mustDate("2026-08-01"),
		DueDate:    mustDate("2026-08-15"),
		Actor:      "admin",
	})
	require.NoError(t, err)

	var stock int
	require.NoError(t, db.Get(&stock, `SELECT stock FROM items WHERE id = $1`, itemID))
	assert.Equal(t, 1, stock)

	returned, err := svc.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReturned, returned.Status)

	require.NoError(t, db.Get(&stock, `SELECT stock FROM items WHERE id = $1`, itemID))
	assert.Equal(t, 2, stock)

	history, err := svc.History(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.EventBorrowed, history[0].EventType)
	assert.Equal(t, ledger.EventReturned, history[1].EventType)
}

func TestPostgresRollbackOnBorrowerMiss(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	itemID, _ := seedBorrowFixture(t, db)

	svc := ledger.NewService(NewPostgres(db), directory.NewResolver(nil))

	_, err := svc.Borrow(ctx, ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: "no-such-nisin",
		ItemID:     itemID,
		BorrowDate: mustDate("2026-08-01"),
		DueDate:    mustDate("2026-08-15"),
	})
	require.ErrorIs(t, err, directory.ErrBorrowerNotFound)

	var stock int
	require.NoError(t, db.Get(&stock, `SELECT stock FROM items WHERE id = $1`, itemID))
	assert.Equal(t, 2, stock)

	var loans int
	require.NoError(t, db.Get(&loans, `SELECT COUNT(*) FROM loans`))
	assert.Equal(t, 0, loans)
}

func TestPostgresGuardedStockUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var itemID int64
	require.NoError(t, db.QueryRow(`
		INSERT INTO items (code, name, stock, active) VALUES ('BK-101', 'Globe', 0, TRUE)
		RETURNING id
	`).Scan(&itemID))

	pg := NewPostgres(db)
	err := pg.InTx(ctx, func(ctx context.Context, uow ledger.UnitOfWork) error {
		return uow.AdjustStock(ctx, itemID, -1)
	})
	require.ErrorIs(t, err, inventory.ErrItemUnavailable)

	err = pg.InTx(ctx, func(ctx context.Context, uow ledger.UnitOfWork) error {
		return uow.AdjustStock(ctx, 999999, -1)
	})
	require.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestPostgresListFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	itemID, nisin := seedBorrowFixture(t, db)
	svc := ledger.NewService(NewPostgres(db), directory.NewResolver(nil))

	loan, err := svc.Borrow(ctx, ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: nisin,
		ItemID:     itemID,
		BorrowDate: mustDate("2026-08-01"),
		DueDate:    mustDate("2026-08-15"),
	})
	require.NoError(t, err)
	_, err = svc.Return(ctx, loan.ID)
	require.NoError(t, err)

	status := ledger.StatusReturned
	loans, err := svc.List(ctx, ledger.Filter{Status: &status})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, loan.ID, loans[0].ID)

	role := directory.RoleTeacher
	loans, err = svc.List(ctx, ledger.Filter{Role: &role})
	require.NoError(t, err)
	assert.Empty(t, loans)
}
