package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"sipinjam/internal/directory"
	"sipinjam/internal/inventory"
	"sipinjam/internal/ledger"
	"sipinjam/internal/store"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	mem     *store.Memory
	service ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	resolver := directory.NewResolver(nil)
	svc := ledger.NewService(mem, resolver)
	// Pin the clock inside the loan period so sweeps stay inert unless a
	// test moves it past the due date.
	ledger.SetClock(t, svc, func() time.Time { return date("2026-08-10") })
	return &fixture{mem: mem, service: svc}
}

func (f *fixture) seedItem(stock int) int64 {
	return f.mem.SeedItem(inventory.Item{Code: "BK-001", Name: "Atlas", Stock: stock, Active: true})
}

func (f *fixture) seedStudent() directory.Student {
	s := directory.Student{ID: 7, NISIN: "0051234567", FullName: "Ani", Active: true}
	f.mem.SeedStudent(s)
	return s
}

func (f *fixture) borrow(t *testing.T, itemID int64) *ledger.Loan {
	t.Helper()
	loan, err := f.service.Borrow(context.Background(), ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: "0051234567",
		ItemID:     itemID,
		BorrowDate: date("2026-08-01"),
		DueDate:    date("2026-08-15"),
		Actor:      "admin",
	})
	require.NoError(t, err)
	return loan
}

func TestBorrowTakesOneUnit(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(3)
	f.seedStudent()

	loan := f.borrow(t, itemID)

	assert.Equal(t, ledger.StatusActive, loan.Status)
	assert.Equal(t, "0051234567", loan.BorrowerID)
	assert.Equal(t, directory.RoleStudent, loan.Role)
	assert.Equal(t, "admin", loan.AddedBy)

	item, ok := f.mem.Item(itemID)
	require.True(t, ok)
	assert.Equal(t, 2, item.Stock)
}

func TestBorrowExhaustedItemLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(0)
	f.seedStudent()

	_, err := f.service.Borrow(context.Background(), ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: "0051234567",
		ItemID:     itemID,
		BorrowDate: date("2026-08-01"),
		DueDate:    date("2026-08-15"),
	})
	require.ErrorIs(t, err, inventory.ErrItemUnavailable)

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 0, item.Stock)

	loans, err := f.service.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestBorrowUnknownBorrowerRollsBackStock(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(2)

	_, err := f.service.Borrow(context.Background(), ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: "no-such-nisin",
		ItemID:     itemID,
		BorrowDate: date("2026-08-01"),
		DueDate:    date("2026-08-15"),
	})
	require.ErrorIs(t, err, directory.ErrBorrowerNotFound)

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 2, item.Stock)
}

func TestBorrowRejectsInvertedDates(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()

	_, err := f.service.Borrow(context.Background(), ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: "0051234567",
		ItemID:     itemID,
		BorrowDate: date("2026-08-15"),
		DueDate:    date("2026-08-01"),
	})
	require.ErrorIs(t, err, ledger.ErrInvalidDateRange)
}

func TestConcurrentBorrowLastUnit(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()

	req := ledger.BorrowRequest{
		Role:       "student",
		BorrowerID: "0051234567",
		ItemID:     itemID,
		BorrowDate: date("2026-08-01"),
		DueDate:    date("2026-08-15"),
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Borrow(context.Background(), req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, inventory.ErrItemUnavailable)
		}
	}
	assert.Equal(t, 1, succeeded)

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 0, item.Stock)
}

func TestReturnRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()
	loan := f.borrow(t, itemID)

	returned, err := f.service.Return(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReturned, returned.Status)

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 1, item.Stock)

	// Second return is a conflict and must not touch stock again.
	_, err = f.service.Return(context.Background(), loan.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadyReturned)

	item, _ = f.mem.Item(itemID)
	assert.Equal(t, 1, item.Stock)
}

func TestChangeItemMovesTheUnit(t *testing.T) {
	f := newFixture(t)
	oldID := f.mem.SeedItem(inventory.Item{Code: "BK-001", Name: "Atlas", Stock: 1, Active: true})
	newID := f.mem.SeedItem(inventory.Item{Code: "BK-002", Name: "Globe", Stock: 1, Active: true})
	f.seedStudent()
	loan := f.borrow(t, oldID)

	changed, err := f.service.ChangeItem(context.Background(), loan.ID, newID)
	require.NoError(t, err)
	assert.Equal(t, newID, changed.ItemID)

	oldItem, _ := f.mem.Item(oldID)
	newItem, _ := f.mem.Item(newID)
	assert.Equal(t, 1, oldItem.Stock)
	assert.Equal(t, 0, newItem.Stock)
}

func TestChangeItemToExhaustedItemRollsBack(t *testing.T) {
	f := newFixture(t)
	oldID := f.mem.SeedItem(inventory.Item{Code: "BK-001", Name: "Atlas", Stock: 1, Active: true})
	newID := f.mem.SeedItem(inventory.Item{Code: "BK-002", Name: "Globe", Stock: 0, Active: true})
	f.seedStudent()
	loan := f.borrow(t, oldID)

	_, err := f.service.ChangeItem(context.Background(), loan.ID, newID)
	require.ErrorIs(t, err, inventory.ErrItemUnavailable)

	// The interim restore of the old item must not survive the rollback.
	oldItem, _ := f.mem.Item(oldID)
	newItem, _ := f.mem.Item(newID)
	assert.Equal(t, 0, oldItem.Stock)
	assert.Equal(t, 0, newItem.Stock)

	kept, ok := f.mem.Loan(loan.ID)
	require.True(t, ok)
	assert.Equal(t, oldID, kept.ItemID)
}

func TestChangeItemOnReturnedLoanLeavesStockAlone(t *testing.T) {
	f := newFixture(t)
	oldID := f.mem.SeedItem(inventory.Item{Code: "BK-001", Name: "Atlas", Stock: 1, Active: true})
	newID := f.mem.SeedItem(inventory.Item{Code: "BK-002", Name: "Globe", Stock: 1, Active: true})
	f.seedStudent()
	loan := f.borrow(t, oldID)

	_, err := f.service.Return(context.Background(), loan.ID)
	require.NoError(t, err)

	changed, err := f.service.ChangeItem(context.Background(), loan.ID, newID)
	require.NoError(t, err)
	assert.Equal(t, newID, changed.ItemID)

	oldItem, _ := f.mem.Item(oldID)
	newItem, _ := f.mem.Item(newID)
	assert.Equal(t, 1, oldItem.Stock)
	assert.Equal(t, 1, newItem.Stock)
}

func TestDeleteActiveLoanRestoresStock(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()
	loan := f.borrow(t, itemID)

	require.NoError(t, f.service.Delete(context.Background(), loan.ID))

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 1, item.Stock)

	_, ok := f.mem.Loan(loan.ID)
	assert.False(t, ok)
}

func TestDeleteReturnedLoanDoesNotRestoreStock(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()
	loan := f.borrow(t, itemID)

	_, err := f.service.Return(context.Background(), loan.ID)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(context.Background(), loan.ID))

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 1, item.Stock)
}

func TestExpirySweepIsLabelOnlyAndIdempotent(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(2)
	f.seedStudent()
	loan := f.borrow(t, itemID)

	// Move the clock one month past the due date.
	ledger.SetClock(t, f.service, func() time.Time { return date("2026-09-15") })

	for i := 0; i < 2; i++ {
		loans, err := f.service.List(context.Background(), ledger.Filter{})
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, ledger.StatusExpired, loans[0].Status)
	}

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 1, item.Stock, "sweep must not touch stock")

	history, err := f.service.History(context.Background(), loan.ID)
	require.NoError(t, err)
	expirations := 0
	for _, e := range history {
		if e.EventType == ledger.EventExpired {
			expirations++
		}
	}
	assert.Equal(t, 1, expirations, "second sweep must record nothing")
}

func TestDeleteExpiredLoanRestoresStock(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()
	loan := f.borrow(t, itemID)

	ledger.SetClock(t, f.service, func() time.Time { return date("2026-09-15") })
	_, err := f.service.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(context.Background(), loan.ID))

	item, _ := f.mem.Item(itemID)
	assert.Equal(t, 1, item.Stock, "expired loan still holds its unit")
}

func TestHistoryRecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	itemID := f.seedItem(1)
	f.seedStudent()
	loan := f.borrow(t, itemID)

	_, err := f.service.Return(context.Background(), loan.ID)
	require.NoError(t, err)

	history, err := f.service.History(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.EventBorrowed, history[0].EventType)
	assert.Equal(t, ledger.EventReturned, history[1].EventType)
}

// TestStockConservation drives a random mix of lifecycle operations and
// checks that stock plus units held by loans always equals the seeded
// total.
func TestStockConservation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		const total = 3
		itemID := f.seedItem(total)
		f.seedStudent()

		ctx := context.Background()
		var open []*ledger.Loan

		ops := rapid.IntRange(1, 30).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0: // borrow
				loan, err := f.service.Borrow(ctx, ledger.BorrowRequest{
					Role:       "student",
					BorrowerID: "0051234567",
					ItemID:     itemID,
					BorrowDate: date("2026-08-01"),
					DueDate:    date("2026-08-15"),
				})
				if err == nil {
					open = append(open, loan)
				}
			case 1: // return
				if len(open) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(open)-1).Draw(rt, "ret")
				if _, err := f.service.Return(ctx, open[idx].ID); err == nil {
					open = append(open[:idx], open[idx+1:]...)
				}
			case 2: // delete
				if len(open) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(open)-1).Draw(rt, "del")
				if err := f.service.Delete(ctx, open[idx].ID); err == nil {
					open = append(open[:idx], open[idx+1:]...)
				}
			}

			item, ok := f.mem.Item(itemID)
			if !ok {
				rt.Fatalf("item disappeared")
			}
			if item.Stock+len(open) != total {
				rt.Fatalf("conservation broken: stock=%d open=%d total=%d",
					item.Stock, len(open), total)
			}
		}
	})
}
