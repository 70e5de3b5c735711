// internal/directory/service.go
package directory

import (
	"context"
)

// StudentInput carries caller-supplied student fields.
type StudentInput struct {
	NISIN    string
	FullName string
	Major    string
	Cohort   string
	Active   bool
}

// TeacherInput carries caller-supplied teacher fields.
type TeacherInput struct {
	NIP      string
	FullName string
	Subject  string
	Active   bool
}

// Service defines the interface for the borrower directory.
type Service interface {
	Lookup

	// LookupBorrower resolves (role, raw identifier) to the canonical
	// borrower reference. Rate limited.
	LookupBorrower(ctx context.Context, role Role, raw string) (BorrowerRef, error)

	CreateStudent(ctx context.Context, in StudentInput) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)
	UpdateStudent(ctx context.Context, id int64, in StudentInput) (*Student, error)
	DeleteStudent(ctx context.Context, id int64) error

	CreateTeacher(ctx context.Context, in TeacherInput) (*Teacher, error)
	ListTeachers(ctx context.Context) ([]Teacher, error)
	UpdateTeacher(ctx context.Context, id int64, in TeacherInput) (*Teacher, error)
	DeleteTeacher(ctx context.Context, id int64) error
}
