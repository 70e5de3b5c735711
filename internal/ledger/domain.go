// internal/ledger/domain.go
package ledger

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"sipinjam/internal/directory"
)

var (
	ErrLoanNotFound     = errors.New("loan not found")
	ErrAlreadyReturned  = errors.New("loan is not active")
	ErrInvalidDateRange = errors.New("due date is before borrow date")
)

// Status is the loan lifecycle label.
type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
	StatusExpired  Status = "expired"
)

// Loan records that one unit of an item is held by a borrower.
//
// Invariant: a loan in status active or expired corresponds to exactly one
// unit of the referenced item's stock having been decremented at creation
// time and not yet restored. Expiry is a label change only; the unit stays
// out until the loan is returned or deleted.
type Loan struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	BorrowerID string         `json:"borrower_id" db:"borrower_id"`
	Role       directory.Role `json:"role" db:"role"`
	ItemID     int64          `json:"item_id" db:"item_id"`
	BorrowDate time.Time      `json:"borrow_date" db:"borrow_date"`
	DueDate    time.Time      `json:"due_date" db:"due_date"`
	Note       string         `json:"note,omitempty" db:"note"`
	Status     Status         `json:"status" db:"status"`
	AddedBy    string         `json:"added_by" db:"added_by"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// HoldsUnit reports whether the loan still accounts for one decremented
// unit of its item (see the Loan invariant).
func (l Loan) HoldsUnit() bool {
	return l.Status == StatusActive || l.Status == StatusExpired
}

// Filter narrows loan listings. Nil fields match everything.
type Filter struct {
	Role   *directory.Role
	Status *Status
	From   *time.Time
	To     *time.Time
}

// Audit event types appended on lifecycle transitions.
const (
	EventBorrowed    = "LoanBorrowed"
	EventReturned    = "LoanReturned"
	EventItemChanged = "LoanItemChanged"
	EventUpdated     = "LoanUpdated"
	EventExpired     = "LoanExpired"
	EventDeleted     = "LoanDeleted"
)

// AuditEntry is one append-only record of a loan lifecycle transition,
// written in the same transaction as the transition itself.
type AuditEntry struct {
	ID         int64           `json:"id" db:"id"`
	LoanID     uuid.UUID       `json:"loan_id" db:"loan_id"`
	EventType  string          `json:"event_type" db:"event_type"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	RecordedAt time.Time       `json:"recorded_at" db:"recorded_at"`
}

// BorrowedPayload is the audit payload for EventBorrowed.
type BorrowedPayload struct {
	BorrowerID string    `json:"borrower_id"`
	Role       string    `json:"role"`
	ItemID     int64     `json:"item_id"`
	DueDate    time.Time `json:"due_date"`
	AddedBy    string    `json:"added_by"`
}

// ReturnedPayload is the audit payload for EventReturned.
type ReturnedPayload struct {
	ItemID     int64     `json:"item_id"`
	ReturnedAt time.Time `json:"returned_at"`
}

// ItemChangedPayload is the audit payload for EventItemChanged.
type ItemChangedPayload struct {
	OldItemID int64 `json:"old_item_id"`
	NewItemID int64 `json:"new_item_id"`
}

// DeletedPayload is the audit payload for EventDeleted.
type DeletedPayload struct {
	ItemID        int64  `json:"item_id"`
	Status        string `json:"status"`
	StockRestored bool   `json:"stock_restored"`
}
