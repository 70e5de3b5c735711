// internal/ledger/implementation.go
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"sipinjam/internal/directory"
	"sipinjam/internal/inventory"
)

// service implements the Service interface.
type service struct {
	runner   Runner
	resolver *directory.Resolver
	tracer   trace.Tracer
	now      func() time.Time

	borrows   metric.Int64Counter
	returns   metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewService creates a new loan ledger service instance.
func NewService(runner Runner, resolver *directory.Resolver) Service {
	meter := otel.Meter("sipinjam/ledger")
	borrows, _ := meter.Int64Counter("ledger.borrows")
	returns, _ := meter.Int64Counter("ledger.returns")
	conflicts, _ := meter.Int64Counter("ledger.conflicts")

	return &service{
		runner:    runner,
		resolver:  resolver,
		tracer:    otel.Tracer("sipinjam/ledger"),
		now:       time.Now,
		borrows:   borrows,
		returns:   returns,
		conflicts: conflicts,
	}
}

// dateOnly strips the time-of-day part; loan dates compare by calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Borrow takes one unit of an item for a borrower. All steps run in one
// transaction: a failure at any point leaves no stock change and no loan
// row behind.
func (s *service) Borrow(ctx context.Context, req BorrowRequest) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.borrow",
		trace.WithAttributes(
			attribute.Int64("item.id", req.ItemID),
			attribute.String("borrower.role", req.Role),
		),
	)
	defer span.End()

	role, err := directory.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	borrowDate := dateOnly(req.BorrowDate)
	dueDate := dateOnly(req.DueDate)
	if dueDate.Before(borrowDate) {
		return nil, ErrInvalidDateRange
	}

	var loan *Loan
	err = s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		item, err := uow.ItemForUpdate(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if !item.Borrowable() {
			s.conflicts.Add(ctx, 1)
			return fmt.Errorf("item %d: %w", item.ID, inventory.ErrItemUnavailable)
		}

		ref, err := s.resolver.Resolve(ctx, uow, role, req.BorrowerID)
		if err != nil {
			return err
		}

		if err := uow.AdjustStock(ctx, item.ID, -1); err != nil {
			return err
		}

		actor := req.Actor
		if actor == "" {
			actor = "system"
		}
		now := s.now().UTC()
		loan = &Loan{
			ID:         uuid.New(),
			BorrowerID: ref.ExternalID,
			Role:       ref.Role,
			ItemID:     item.ID,
			BorrowDate: borrowDate,
			DueDate:    dueDate,
			Note:       req.Note,
			Status:     StatusActive,
			AddedBy:    actor,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := uow.InsertLoan(ctx, loan); err != nil {
			return err
		}

		return s.audit(ctx, uow, loan.ID, EventBorrowed, BorrowedPayload{
			BorrowerID: loan.BorrowerID,
			Role:       string(loan.Role),
			ItemID:     loan.ItemID,
			DueDate:    loan.DueDate,
			AddedBy:    loan.AddedBy,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.borrows.Add(ctx, 1)
	span.SetAttributes(attribute.String("loan.id", loan.ID.String()))
	return loan, nil
}

// Return marks an active loan returned and restores its unit of stock.
// Returning a loan twice fails with ErrAlreadyReturned; the stock is
// incremented exactly once.
func (s *service) Return(ctx context.Context, id uuid.UUID) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.return",
		trace.WithAttributes(attribute.String("loan.id", id.String())),
	)
	defer span.End()

	var loan *Loan
	err := s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		loan, err = uow.LoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loan.Status != StatusActive {
			s.conflicts.Add(ctx, 1)
			return fmt.Errorf("loan %s is %s: %w", loan.ID, loan.Status, ErrAlreadyReturned)
		}

		loan.Status = StatusReturned
		loan.UpdatedAt = s.now().UTC()
		if err := uow.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		if err := uow.AdjustStock(ctx, loan.ItemID, +1); err != nil {
			return err
		}

		return s.audit(ctx, uow, loan.ID, EventReturned, ReturnedPayload{
			ItemID:     loan.ItemID,
			ReturnedAt: loan.UpdatedAt,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.returns.Add(ctx, 1)
	return loan, nil
}

// ChangeItem swaps the borrowed item on a loan. The old item's unit is
// restored and a unit of the new item is taken in the same transaction,
// so a failure after the restore is never observable.
func (s *service) ChangeItem(ctx context.Context, id uuid.UUID, newItemID int64) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.change_item",
		trace.WithAttributes(
			attribute.String("loan.id", id.String()),
			attribute.Int64("item.new_id", newItemID),
		),
	)
	defer span.End()

	var loan *Loan
	err := s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		loan, err = uow.LoanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.swapItem(ctx, uow, loan, newItemID); err != nil {
			return err
		}
		loan.UpdatedAt = s.now().UTC()
		return uow.UpdateLoan(ctx, loan)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return loan, nil
}

// swapItem moves a loan from its current item to newItemID inside an open
// transaction. No-op when the item is unchanged. Stock only moves while
// the loan still holds a unit.
func (s *service) swapItem(ctx context.Context, uow UnitOfWork, loan *Loan, newItemID int64) error {
	if loan.ItemID == newItemID {
		return nil
	}

	oldItemID := loan.ItemID
	if loan.HoldsUnit() {
		if err := uow.AdjustStock(ctx, oldItemID, +1); err != nil {
			return err
		}
		newItem, err := uow.ItemForUpdate(ctx, newItemID)
		if err != nil {
			return err
		}
		if !newItem.Borrowable() {
			s.conflicts.Add(ctx, 1)
			return fmt.Errorf("item %d: %w", newItem.ID, inventory.ErrItemUnavailable)
		}
		if err := uow.AdjustStock(ctx, newItemID, -1); err != nil {
			return err
		}
	} else {
		// Returned loans hold no stock; just verify the target exists.
		if _, err := uow.ItemForUpdate(ctx, newItemID); err != nil {
			return err
		}
	}

	loan.ItemID = newItemID
	return s.audit(ctx, uow, loan.ID, EventItemChanged, ItemChangedPayload{
		OldItemID: oldItemID,
		NewItemID: newItemID,
	})
}

// Update rewrites the mutable fields of a loan: borrower, item, dates and
// note. Borrower resolution and item swaps follow the same rules as
// Borrow and ChangeItem, inside one transaction.
func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.update",
		trace.WithAttributes(attribute.String("loan.id", id.String())),
	)
	defer span.End()

	role, err := directory.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	borrowDate := dateOnly(req.BorrowDate)
	dueDate := dateOnly(req.DueDate)
	if dueDate.Before(borrowDate) {
		return nil, ErrInvalidDateRange
	}

	var loan *Loan
	err = s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		loan, err = uow.LoanForUpdate(ctx, id)
		if err != nil {
			return err
		}

		ref, err := s.resolver.Resolve(ctx, uow, role, req.BorrowerID)
		if err != nil {
			return err
		}
		if err := s.swapItem(ctx, uow, loan, req.ItemID); err != nil {
			return err
		}

		loan.BorrowerID = ref.ExternalID
		loan.Role = ref.Role
		loan.BorrowDate = borrowDate
		loan.DueDate = dueDate
		loan.Note = req.Note
		loan.UpdatedAt = s.now().UTC()
		if err := uow.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		return s.audit(ctx, uow, loan.ID, EventUpdated, loan)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return loan, nil
}

// Delete removes a loan. A loan that still holds a unit (active or
// expired) gives it back to the item's stock in the same transaction.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "ledger.delete",
		trace.WithAttributes(attribute.String("loan.id", id.String())),
	)
	defer span.End()

	err := s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		loan, err := uow.LoanForUpdate(ctx, id)
		if err != nil {
			return err
		}

		restored := false
		if loan.HoldsUnit() {
			if err := uow.AdjustStock(ctx, loan.ItemID, +1); err != nil {
				return err
			}
			restored = true
		}
		if err := uow.DeleteLoan(ctx, loan.ID); err != nil {
			return err
		}

		return s.audit(ctx, uow, loan.ID, EventDeleted, DeletedPayload{
			ItemID:        loan.ItemID,
			Status:        string(loan.Status),
			StockRestored: restored,
		})
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Get loads a single loan.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*Loan, error) {
	var loan *Loan
	err := s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		loan, err = uow.LoanForUpdate(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// List runs the expiry sweep, then returns loans matching the filter.
//
// The sweep is a label-only transition: overdue active loans become
// expired, stock is untouched, returned loans are never revisited.
// Running it twice changes nothing, so piggybacking it on every listing
// is safe.
func (s *service) List(ctx context.Context, f Filter) ([]Loan, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.list")
	defer span.End()

	var loans []Loan
	err := s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		expired, err := uow.MarkExpired(ctx, dateOnly(s.now()))
		if err != nil {
			return err
		}
		for _, id := range expired {
			if err := s.audit(ctx, uow, id, EventExpired, nil); err != nil {
				return err
			}
		}

		loans, err = uow.ListLoans(ctx, f)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("loans.count", len(loans)))
	return loans, nil
}

// History returns the audit trail of a loan, oldest first.
func (s *service) History(ctx context.Context, id uuid.UUID) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := s.runner.InTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		var err error
		entries, err = uow.ListAudit(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *service) audit(ctx context.Context, uow UnitOfWork, loanID uuid.UUID, eventType string, payload any) error {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = jsoniter.ConfigFastest.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
	}
	return uow.AppendAudit(ctx, &AuditEntry{
		LoanID:     loanID,
		EventType:  eventType,
		Payload:    raw,
		RecordedAt: s.now().UTC(),
	})
}
