// internal/directory/resolver.go
package directory

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
)

// Lookup is the read-only borrower access the resolver needs. Both the
// directory service and a ledger unit of work satisfy it, so resolution
// can run inside a loan transaction.
type Lookup interface {
	StudentByNISIN(ctx context.Context, nisin string) (*Student, error)
	StudentByID(ctx context.Context, id int64) (*Student, error)
	TeacherByNIP(ctx context.Context, nip string) (*Teacher, error)
	TeacherByID(ctx context.Context, id int64) (*Teacher, error)
}

// Resolver maps (role, raw identifier) to a canonical borrower reference.
//
// The lookup is deliberately two-step: the natural key (NISIN for
// students, NIP for teachers) is tried first; if that misses and the raw
// identifier is purely numeric, the surrogate id is tried as a fallback.
// The fallback exists because clients have historically sent internal ids
// where a natural key was expected. Accepting both is a known ambiguity,
// so every fallback hit is logged rather than silently absorbed.
type Resolver struct {
	log *slog.Logger
}

func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log}
}

// Resolve returns the canonical reference for a borrower, always keyed by
// the natural key regardless of which lookup path matched.
func (r *Resolver) Resolve(ctx context.Context, l Lookup, role Role, raw string) (BorrowerRef, error) {
	if raw == "" {
		return BorrowerRef{}, ErrBorrowerNotFound
	}

	switch role {
	case RoleStudent:
		s, err := l.StudentByNISIN(ctx, raw)
		if errors.Is(err, ErrBorrowerNotFound) {
			if id, numeric := asNumericID(raw); numeric {
				s, err = l.StudentByID(ctx, id)
				if err == nil {
					r.log.WarnContext(ctx, "borrower resolved by surrogate id fallback",
						"role", string(role), "raw_id", raw, "nisin", s.NISIN)
				}
			}
		}
		if err != nil {
			return BorrowerRef{}, err
		}
		if !s.Active {
			return BorrowerRef{}, ErrBorrowerInactive
		}
		return BorrowerRef{Role: RoleStudent, ExternalID: s.NISIN, FullName: s.FullName}, nil

	case RoleTeacher:
		t, err := l.TeacherByNIP(ctx, raw)
		if errors.Is(err, ErrBorrowerNotFound) {
			if id, numeric := asNumericID(raw); numeric {
				t, err = l.TeacherByID(ctx, id)
				if err == nil {
					r.log.WarnContext(ctx, "borrower resolved by surrogate id fallback",
						"role", string(role), "raw_id", raw, "nip", t.NIP)
				}
			}
		}
		if err != nil {
			return BorrowerRef{}, err
		}
		if !t.Active {
			return BorrowerRef{}, ErrBorrowerInactive
		}
		return BorrowerRef{Role: RoleTeacher, ExternalID: t.NIP, FullName: t.FullName}, nil

	default:
		return BorrowerRef{}, ErrBorrowerNotFound
	}
}

func asNumericID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
