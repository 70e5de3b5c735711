// internal/directory/implementation.go
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/time/rate"
)

// service implements the Service interface.
type service struct {
	db          *sqlx.DB
	resolver    *Resolver
	rateLimiter *rate.Limiter
}

// NewService creates a new borrower directory service instance.
func NewService(db *sqlx.DB, resolver *Resolver) Service {
	return &service{
		db:          db,
		resolver:    resolver,
		rateLimiter: rate.NewLimiter(rate.Every(time.Second), 20),
	}
}

// LookupBorrower resolves a borrower for callers outside a loan
// transaction. The public lookup endpoint is the one surface exposed to
// form autocompletion, hence the limiter.
func (s *service) LookupBorrower(ctx context.Context, role Role, raw string) (BorrowerRef, error) {
	if !s.rateLimiter.Allow() {
		return BorrowerRef{}, ErrRateLimited
	}
	return s.resolver.Resolve(ctx, s, role, raw)
}

func (s *service) StudentByNISIN(ctx context.Context, nisin string) (*Student, error) {
	return s.getStudent(ctx, `WHERE nisin = $1`, nisin)
}

func (s *service) StudentByID(ctx context.Context, id int64) (*Student, error) {
	return s.getStudent(ctx, `WHERE id = $1`, id)
}

func (s *service) TeacherByNIP(ctx context.Context, nip string) (*Teacher, error) {
	return s.getTeacher(ctx, `WHERE nip = $1`, nip)
}

func (s *service) TeacherByID(ctx context.Context, id int64) (*Teacher, error) {
	return s.getTeacher(ctx, `WHERE id = $1`, id)
}

func (s *service) getStudent(ctx context.Context, where string, arg any) (*Student, error) {
	st := &Student{}
	err := s.db.GetContext(ctx, st, `
		SELECT id, nisin, full_name, major, cohort, active, created_at, updated_at
		FROM students `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (s *service) getTeacher(ctx context.Context, where string, arg any) (*Teacher, error) {
	t := &Teacher{}
	err := s.db.GetContext(ctx, t, `
		SELECT id, nip, full_name, subject, active, created_at, updated_at
		FROM teachers `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	return t, nil
}

// CreateStudent registers a student record.
func (s *service) CreateStudent(ctx context.Context, in StudentInput) (*Student, error) {
	st := &Student{}
	err := s.db.GetContext(ctx, st, `
		INSERT INTO students (nisin, full_name, major, cohort, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, nisin, full_name, major, cohort, active, created_at, updated_at
	`, in.NISIN, in.FullName, in.Major, in.Cohort, in.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nisin %q: %w", in.NISIN, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("create student: %w", err)
	}
	return st, nil
}

// ListStudents returns all student records.
func (s *service) ListStudents(ctx context.Context) ([]Student, error) {
	students := []Student{}
	err := s.db.SelectContext(ctx, &students, `
		SELECT id, nisin, full_name, major, cohort, active, created_at, updated_at
		FROM students
		ORDER BY full_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// UpdateStudent rewrites a student record.
func (s *service) UpdateStudent(ctx context.Context, id int64, in StudentInput) (*Student, error) {
	st := &Student{}
	err := s.db.GetContext(ctx, st, `
		UPDATE students
		SET nisin = $1, full_name = $2, major = $3, cohort = $4, active = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING id, nisin, full_name, major, cohort, active, created_at, updated_at
	`, in.NISIN, in.FullName, in.Major, in.Cohort, in.Active, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nisin %q: %w", in.NISIN, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("update student %d: %w", id, err)
	}
	return st, nil
}

// DeleteStudent removes a student record.
func (s *service) DeleteStudent(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "students", id)
}

// CreateTeacher registers a teacher record.
func (s *service) CreateTeacher(ctx context.Context, in TeacherInput) (*Teacher, error) {
	t := &Teacher{}
	err := s.db.GetContext(ctx, t, `
		INSERT INTO teachers (nip, full_name, subject, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, nip, full_name, subject, active, created_at, updated_at
	`, in.NIP, in.FullName, in.Subject, in.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nip %q: %w", in.NIP, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("create teacher: %w", err)
	}
	return t, nil
}

// ListTeachers returns all teacher records.
func (s *service) ListTeachers(ctx context.Context) ([]Teacher, error) {
	teachers := []Teacher{}
	err := s.db.SelectContext(ctx, &teachers, `
		SELECT id, nip, full_name, subject, active, created_at, updated_at
		FROM teachers
		ORDER BY full_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// UpdateTeacher rewrites a teacher record.
func (s *service) UpdateTeacher(ctx context.Context, id int64, in TeacherInput) (*Teacher, error) {
	t := &Teacher{}
	err := s.db.GetContext(ctx, t, `
		UPDATE teachers
		SET nip = $1, full_name = $2, subject = $3, active = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING id, nip, full_name, subject, active, created_at, updated_at
	`, in.NIP, in.FullName, in.Subject, in.Active, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBorrowerNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nip %q: %w", in.NIP, ErrDuplicateKey)
		}
		return nil, fmt.Errorf("update teacher %d: %w", id, err)
	}
	return t, nil
}

// DeleteTeacher removes a teacher record.
func (s *service) DeleteTeacher(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "teachers", id)
}

func (s *service) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrBorrowerNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
