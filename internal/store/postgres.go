// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"sipinjam/internal/directory"
	"sipinjam/internal/inventory"
	"sipinjam/internal/ledger"
)

const dialectPostgres = "postgres"

// Postgres runs ledger units of work on a PostgreSQL record store.
// Per-item serialization comes from SELECT ... FOR UPDATE row locks plus
// a guarded stock update; borrows against different items do not block
// each other.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// InTx opens one all-or-nothing transaction around fn. Business-rule
// errors from fn roll everything back unchanged; storage errors are
// wrapped and bubble up unmodified otherwise.
func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, uow ledger.UnitOfWork) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgUnit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgUnit implements ledger.UnitOfWork over an open transaction.
type pgUnit struct {
	tx *sqlx.Tx
}

func (u *pgUnit) ItemForUpdate(ctx context.Context, id int64) (*inventory.Item, error) {
	item := &inventory.Item{}
	err := u.tx.GetContext(ctx, item, `
		SELECT id, code, name, category_id, stock, location, description, active, created_at, updated_at
		FROM items
		WHERE id = $1
		FOR UPDATE
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, inventory.ErrItemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock item %d: %w", id, err)
	}
	return item, nil
}

// AdjustStock is the single mutation path for the stock counter. The
// WHERE clause makes the non-negativity check and the write one atomic
// statement, so two concurrent borrows of the last unit cannot both pass.
func (u *pgUnit) AdjustStock(ctx context.Context, id int64, delta int) error {
	res, err := u.tx.ExecContext(ctx, `
		UPDATE items
		SET stock = stock + $1, updated_at = NOW()
		WHERE id = $2 AND stock + $1 >= 0
	`, delta, id)
	if err != nil {
		return fmt.Errorf("adjust stock of item %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust stock of item %d: %w", id, err)
	}
	if affected == 0 {
		var exists bool
		if err := u.tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("adjust stock of item %d: %w", id, err)
		}
		if !exists {
			return fmt.Errorf("item %d: %w", id, inventory.ErrItemNotFound)
		}
		return fmt.Errorf("item %d: %w", id, inventory.ErrItemUnavailable)
	}
	return nil
}

func (u *pgUnit) StudentByNISIN(ctx context.Context, nisin string) (*directory.Student, error) {
	return getStudent(ctx, u.tx, `WHERE nisin = $1`, nisin)
}

func (u *pgUnit) StudentByID(ctx context.Context, id int64) (*directory.Student, error) {
	return getStudent(ctx, u.tx, `WHERE id = $1`, id)
}

func (u *pgUnit) TeacherByNIP(ctx context.Context, nip string) (*directory.Teacher, error) {
	return getTeacher(ctx, u.tx, `WHERE nip = $1`, nip)
}

func (u *pgUnit) TeacherByID(ctx context.Context, id int64) (*directory.Teacher, error) {
	return getTeacher(ctx, u.tx, `WHERE id = $1`, id)
}

func getStudent(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*directory.Student, error) {
	s := &directory.Student{}
	err := sqlx.GetContext(ctx, q, s, `
		SELECT id, nisin, full_name, major, cohort, active, created_at, updated_at
		FROM students `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrBorrowerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

func getTeacher(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*directory.Teacher, error) {
	t := &directory.Teacher{}
	err := sqlx.GetContext(ctx, q, t, `
		SELECT id, nip, full_name, subject, active, created_at, updated_at
		FROM teachers `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrBorrowerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	return t, nil
}

func (u *pgUnit) InsertLoan(ctx context.Context, l *ledger.Loan) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO loans (id, borrower_id, role, item_id, borrow_date, due_date, note, status, added_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID, l.BorrowerID, l.Role, l.ItemID, l.BorrowDate, l.DueDate, l.Note, l.Status, l.AddedBy, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("loan %s already exists: %w", l.ID, err)
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (u *pgUnit) LoanForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Loan, error) {
	loan := &ledger.Loan{}
	err := u.tx.GetContext(ctx, loan, `
		SELECT id, borrower_id, role, item_id, borrow_date, due_date, note, status, added_by, created_at, updated_at
		FROM loans
		WHERE id = $1
		FOR UPDATE
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %s: %w", id, ledger.ErrLoanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock loan %s: %w", id, err)
	}
	return loan, nil
}

func (u *pgUnit) UpdateLoan(ctx context.Context, l *ledger.Loan) error {
	_, err := u.tx.ExecContext(ctx, `
		UPDATE loans
		SET borrower_id = $1, role = $2, item_id = $3, borrow_date = $4, due_date = $5,
		    note = $6, status = $7, updated_at = $8
		WHERE id = $9
	`, l.BorrowerID, l.Role, l.ItemID, l.BorrowDate, l.DueDate, l.Note, l.Status, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("update loan %s: %w", l.ID, err)
	}
	return nil
}

func (u *pgUnit) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	res, err := u.tx.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete loan %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("loan %s: %w", id, ledger.ErrLoanNotFound)
	}
	return nil
}

func (u *pgUnit) ListLoans(ctx context.Context, f ledger.Filter) ([]ledger.Loan, error) {
	ds := goqu.Dialect(dialectPostgres).
		From("loans").
		Select("id", "borrower_id", "role", "item_id", "borrow_date", "due_date",
			"note", "status", "added_by", "created_at", "updated_at").
		Order(goqu.I("created_at").Desc())

	if f.Role != nil {
		ds = ds.Where(goqu.C("role").Eq(string(*f.Role)))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	if f.From != nil {
		ds = ds.Where(goqu.C("borrow_date").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("borrow_date").Lte(*f.To))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan listing: %w", err)
	}

	loans := []ledger.Loan{}
	if err := u.tx.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (u *pgUnit) MarkExpired(ctx context.Context, today time.Time) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := u.tx.SelectContext(ctx, &ids, `
		UPDATE loans
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND due_date < $1
		RETURNING id
	`, today)
	if err != nil {
		return nil, fmt.Errorf("mark expired loans: %w", err)
	}
	return ids, nil
}

func (u *pgUnit) AppendAudit(ctx context.Context, e *ledger.AuditEntry) error {
	err := u.tx.QueryRowContext(ctx, `
		INSERT INTO loan_audit (loan_id, event_type, payload, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, e.LoanID, e.EventType, nullableJSON(e.Payload), e.RecordedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append audit for loan %s: %w", e.LoanID, err)
	}
	return nil
}

func (u *pgUnit) ListAudit(ctx context.Context, loanID uuid.UUID) ([]ledger.AuditEntry, error) {
	entries := []ledger.AuditEntry{}
	err := u.tx.SelectContext(ctx, &entries, `
		SELECT id, loan_id, event_type, payload, recorded_at
		FROM loan_audit
		WHERE loan_id = $1
		ORDER BY id ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list audit for loan %s: %w", loanID, err)
	}
	return entries, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
