// internal/directory/domain.go
package directory

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBorrowerNotFound = errors.New("borrower not found")
	ErrBorrowerInactive = errors.New("borrower is not active")
	ErrDuplicateKey     = errors.New("natural key already in use")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// Role tags the two borrower populations the directory resolves.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// ParseRole validates a caller-supplied role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleTeacher:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Student is a borrower record keyed by its NISIN natural key.
type Student struct {
	ID        int64     `json:"id" db:"id"`
	NISIN     string    `json:"nisin" db:"nisin"`
	FullName  string    `json:"full_name" db:"full_name"`
	Major     string    `json:"major,omitempty" db:"major"`
	Cohort    string    `json:"cohort,omitempty" db:"cohort"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Teacher is a borrower record keyed by its NIP natural key.
type Teacher struct {
	ID        int64     `json:"id" db:"id"`
	NIP       string    `json:"nip" db:"nip"`
	FullName  string    `json:"full_name" db:"full_name"`
	Subject   string    `json:"subject,omitempty" db:"subject"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BorrowerRef is the resolved identity a loan stores: the role tag plus
// the role-specific natural key. It never carries a surrogate id.
type BorrowerRef struct {
	Role       Role   `json:"role"`
	ExternalID string `json:"external_id"`
	FullName   string `json:"full_name,omitempty"`
}
