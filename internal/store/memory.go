// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sipinjam/internal/directory"
	"sipinjam/internal/inventory"
	"sipinjam/internal/ledger"
)

// Memory is an in-process record store used by the test suite and dev
// tooling. One coarse mutex makes each unit of work serializable, which
// is what row locks buy the postgres engine; rollback works by
// snapshotting state at transaction start.
type Memory struct {
	mu sync.Mutex

	items    map[int64]inventory.Item
	students map[int64]directory.Student
	teachers map[int64]directory.Teacher
	loans    map[uuid.UUID]ledger.Loan
	audit    []ledger.AuditEntry

	nextItemID  int64
	nextAuditID int64
}

func NewMemory() *Memory {
	return &Memory{
		items:    make(map[int64]inventory.Item),
		students: make(map[int64]directory.Student),
		teachers: make(map[int64]directory.Teacher),
		loans:    make(map[uuid.UUID]ledger.Loan),
	}
}

// InTx serializes fn against all other units of work and rolls state back
// wholesale when fn fails.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, uow ledger.UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, &memUnit{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	items    map[int64]inventory.Item
	students map[int64]directory.Student
	teachers map[int64]directory.Teacher
	loans    map[uuid.UUID]ledger.Loan
	auditLen int
	auditID  int64
}

func (m *Memory) snapshot() memSnapshot {
	snap := memSnapshot{
		items:    make(map[int64]inventory.Item, len(m.items)),
		students: make(map[int64]directory.Student, len(m.students)),
		teachers: make(map[int64]directory.Teacher, len(m.teachers)),
		loans:    make(map[uuid.UUID]ledger.Loan, len(m.loans)),
		auditLen: len(m.audit),
		auditID:  m.nextAuditID,
	}
	for k, v := range m.items {
		snap.items[k] = v
	}
	for k, v := range m.students {
		snap.students[k] = v
	}
	for k, v := range m.teachers {
		snap.teachers[k] = v
	}
	for k, v := range m.loans {
		snap.loans[k] = v
	}
	return snap
}

func (m *Memory) restore(snap memSnapshot) {
	m.items = snap.items
	m.students = snap.students
	m.teachers = snap.teachers
	m.loans = snap.loans
	m.audit = m.audit[:snap.auditLen]
	m.nextAuditID = snap.auditID
}

// SeedItem registers an item and returns its id.
func (m *Memory) SeedItem(item inventory.Item) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == 0 {
		m.nextItemID++
		item.ID = m.nextItemID
	} else if item.ID > m.nextItemID {
		m.nextItemID = item.ID
	}
	m.items[item.ID] = item
	return item.ID
}

// SeedStudent registers a student record.
func (m *Memory) SeedStudent(s directory.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

// SeedTeacher registers a teacher record.
func (m *Memory) SeedTeacher(t directory.Teacher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teachers[t.ID] = t
}

// Item returns a copy of the stored item for assertions.
func (m *Memory) Item(id int64) (inventory.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	return item, ok
}

// Loan returns a copy of the stored loan for assertions.
func (m *Memory) Loan(id uuid.UUID) (ledger.Loan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[id]
	return loan, ok
}

// memUnit implements ledger.UnitOfWork against the locked state.
type memUnit struct {
	m *Memory
}

func (u *memUnit) ItemForUpdate(_ context.Context, id int64) (*inventory.Item, error) {
	item, ok := u.m.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, inventory.ErrItemNotFound)
	}
	return &item, nil
}

func (u *memUnit) AdjustStock(_ context.Context, id int64, delta int) error {
	item, ok := u.m.items[id]
	if !ok {
		return fmt.Errorf("item %d: %w", id, inventory.ErrItemNotFound)
	}
	if item.Stock+delta < 0 {
		return fmt.Errorf("item %d: %w", id, inventory.ErrItemUnavailable)
	}
	item.Stock += delta
	item.UpdatedAt = time.Now().UTC()
	u.m.items[id] = item
	return nil
}

func (u *memUnit) StudentByNISIN(_ context.Context, nisin string) (*directory.Student, error) {
	for _, s := range u.m.students {
		if s.NISIN == nisin {
			s := s
			return &s, nil
		}
	}
	return nil, directory.ErrBorrowerNotFound
}

func (u *memUnit) StudentByID(_ context.Context, id int64) (*directory.Student, error) {
	s, ok := u.m.students[id]
	if !ok {
		return nil, directory.ErrBorrowerNotFound
	}
	return &s, nil
}

func (u *memUnit) TeacherByNIP(_ context.Context, nip string) (*directory.Teacher, error) {
	for _, t := range u.m.teachers {
		if t.NIP == nip {
			t := t
			return &t, nil
		}
	}
	return nil, directory.ErrBorrowerNotFound
}

func (u *memUnit) TeacherByID(_ context.Context, id int64) (*directory.Teacher, error) {
	t, ok := u.m.teachers[id]
	if !ok {
		return nil, directory.ErrBorrowerNotFound
	}
	return &t, nil
}

func (u *memUnit) InsertLoan(_ context.Context, l *ledger.Loan) error {
	if _, exists := u.m.loans[l.ID]; exists {
		return fmt.Errorf("loan %s already exists", l.ID)
	}
	u.m.loans[l.ID] = *l
	return nil
}

func (u *memUnit) LoanForUpdate(_ context.Context, id uuid.UUID) (*ledger.Loan, error) {
	loan, ok := u.m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, ledger.ErrLoanNotFound)
	}
	return &loan, nil
}

func (u *memUnit) UpdateLoan(_ context.Context, l *ledger.Loan) error {
	if _, ok := u.m.loans[l.ID]; !ok {
		return fmt.Errorf("loan %s: %w", l.ID, ledger.ErrLoanNotFound)
	}
	u.m.loans[l.ID] = *l
	return nil
}

func (u *memUnit) DeleteLoan(_ context.Context, id uuid.UUID) error {
	if _, ok := u.m.loans[id]; !ok {
		return fmt.Errorf("loan %s: %w", id, ledger.ErrLoanNotFound)
	}
	delete(u.m.loans, id)
	return nil
}

func (u *memUnit) ListLoans(_ context.Context, f ledger.Filter) ([]ledger.Loan, error) {
	loans := []ledger.Loan{}
	for _, l := range u.m.loans {
		if f.Role != nil && l.Role != *f.Role {
			continue
		}
		if f.Status != nil && l.Status != *f.Status {
			continue
		}
		if f.From != nil && l.BorrowDate.Before(*f.From) {
			continue
		}
		if f.To != nil && l.BorrowDate.After(*f.To) {
			continue
		}
		loans = append(loans, l)
	}
	return loans, nil
}

func (u *memUnit) MarkExpired(_ context.Context, today time.Time) ([]uuid.UUID, error) {
	var expired []uuid.UUID
	for id, l := range u.m.loans {
		if l.Status == ledger.StatusActive && l.DueDate.Before(today) {
			l.Status = ledger.StatusExpired
			l.UpdatedAt = time.Now().UTC()
			u.m.loans[id] = l
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (u *memUnit) AppendAudit(_ context.Context, e *ledger.AuditEntry) error {
	u.m.nextAuditID++
	e.ID = u.m.nextAuditID
	u.m.audit = append(u.m.audit, *e)
	return nil
}

func (u *memUnit) ListAudit(_ context.Context, loanID uuid.UUID) ([]ledger.AuditEntry, error) {
	entries := []ledger.AuditEntry{}
	for _, e := range u.m.audit {
		if e.LoanID == loanID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
