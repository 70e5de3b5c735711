// internal/ledger/service.go
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sipinjam/internal/directory"
	"sipinjam/internal/inventory"
)

// UnitOfWork is the transaction-scoped record access a ledger operation
// composes. Every mutation issued through one UnitOfWork commits or rolls
// back as a whole; stock and loan rows can never diverge.
//
// AdjustStock is the only path that mutates an item's stock counter. It
// enforces the non-negativity invariant, so callers express intent as a
// delta and never write the field directly.
type UnitOfWork interface {
	directory.Lookup

	ItemForUpdate(ctx context.Context, id int64) (*inventory.Item, error)
	AdjustStock(ctx context.Context, id int64, delta int) error

	InsertLoan(ctx context.Context, l *Loan) error
	LoanForUpdate(ctx context.Context, id uuid.UUID) (*Loan, error)
	UpdateLoan(ctx context.Context, l *Loan) error
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	ListLoans(ctx context.Context, f Filter) ([]Loan, error)
	MarkExpired(ctx context.Context, today time.Time) ([]uuid.UUID, error)

	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, loanID uuid.UUID) ([]AuditEntry, error)
}

// Runner opens the atomic unit a ledger operation runs in. A nil error
// from fn commits; any error rolls everything back.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// BorrowRequest carries the caller input for Borrow.
type BorrowRequest struct {
	Role       string
	BorrowerID string
	ItemID     int64
	BorrowDate time.Time
	DueDate    time.Time
	Note       string
	Actor      string
}

// UpdateRequest carries the caller input for Update. All fields are
// required; the handler fills unchanged fields from the current loan.
type UpdateRequest struct {
	Role       string
	BorrowerID string
	ItemID     int64
	BorrowDate time.Time
	DueDate    time.Time
	Note       string
}

// Service owns the loan lifecycle and the stock invariant.
type Service interface {
	Borrow(ctx context.Context, req BorrowRequest) (*Loan, error)
	Return(ctx context.Context, id uuid.UUID) (*Loan, error)
	ChangeItem(ctx context.Context, id uuid.UUID, newItemID int64) (*Loan, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Loan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Loan, error)
	List(ctx context.Context, f Filter) ([]Loan, error)
	History(ctx context.Context, id uuid.UUID) ([]AuditEntry, error)
}
