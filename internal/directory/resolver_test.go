package directory_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sipinjam/internal/directory"
)

// fakeLookup backs the resolver with fixed records.
type fakeLookup struct {
	students map[string]directory.Student
	teachers map[string]directory.Teacher
}

func (f *fakeLookup) StudentByNISIN(_ context.Context, nisin string) (*directory.Student, error) {
	if s, ok := f.students[nisin]; ok {
		return &s, nil
	}
	return nil, directory.ErrBorrowerNotFound
}

func (f *fakeLookup) StudentByID(_ context.Context, id int64) (*directory.Student, error) {
	for _, s := range f.students {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, directory.ErrBorrowerNotFound
}

func (f *fakeLookup) TeacherByNIP(_ context.Context, nip string) (*directory.Teacher, error) {
	if t, ok := f.teachers[nip]; ok {
		return &t, nil
	}
	return nil, directory.ErrBorrowerNotFound
}

func (f *fakeLookup) TeacherByID(_ context.Context, id int64) (*directory.Teacher, error) {
	for _, t := range f.teachers {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, directory.ErrBorrowerNotFound
}

func TestResolveByNaturalKey(t *testing.T) {
	lookup := &fakeLookup{students: map[string]directory.Student{
		"0051234567": {ID: 42, NISIN: "0051234567", FullName: "Ani", Active: true},
	}}
	r := directory.NewResolver(nil)

	ref, err := r.Resolve(context.Background(), lookup, directory.RoleStudent, "0051234567")
	require.NoError(t, err)
	assert.Equal(t, directory.RoleStudent, ref.Role)
	assert.Equal(t, "0051234567", ref.ExternalID)
}

func TestResolveFallsBackToSurrogateID(t *testing.T) {
	lookup := &fakeLookup{students: map[string]directory.Student{
		"0051234567": {ID: 42, NISIN: "0051234567", FullName: "Ani", Active: true},
	}}

	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	r := directory.NewResolver(log)

	ref, err := r.Resolve(context.Background(), lookup, directory.RoleStudent, "42")
	require.NoError(t, err)

	// The reference carries the natural key, never the surrogate id.
	assert.Equal(t, "0051234567", ref.ExternalID)
	assert.Contains(t, buf.String(), "surrogate id fallback")
}

func TestResolveNaturalKeyWinsOverNumericID(t *testing.T) {
	// "42" is simultaneously a valid NISIN of one student and the
	// surrogate id of another. The natural key must win.
	lookup := &fakeLookup{students: map[string]directory.Student{
		"42":         {ID: 7, NISIN: "42", FullName: "Budi", Active: true},
		"0051234567": {ID: 42, NISIN: "0051234567", FullName: "Ani", Active: true},
	}}
	r := directory.NewResolver(nil)

	ref, err := r.Resolve(context.Background(), lookup, directory.RoleStudent, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", ref.ExternalID)
}

func TestResolveTeacherByNIP(t *testing.T) {
	lookup := &fakeLookup{teachers: map[string]directory.Teacher{
		"19800101": {ID: 3, NIP: "19800101", FullName: "Pak Joko", Active: true},
	}}
	r := directory.NewResolver(nil)

	ref, err := r.Resolve(context.Background(), lookup, directory.RoleTeacher, "19800101")
	require.NoError(t, err)
	assert.Equal(t, directory.RoleTeacher, ref.Role)
	assert.Equal(t, "19800101", ref.ExternalID)
}

func TestResolveNonNumericMissSkipsFallback(t *testing.T) {
	lookup := &fakeLookup{students: map[string]directory.Student{}}
	r := directory.NewResolver(nil)

	_, err := r.Resolve(context.Background(), lookup, directory.RoleStudent, "abc-123")
	require.ErrorIs(t, err, directory.ErrBorrowerNotFound)
}

func TestResolveInactiveBorrower(t *testing.T) {
	lookup := &fakeLookup{students: map[string]directory.Student{
		"0051234567": {ID: 42, NISIN: "0051234567", Active: false},
	}}
	r := directory.NewResolver(nil)

	_, err := r.Resolve(context.Background(), lookup, directory.RoleStudent, "0051234567")
	require.ErrorIs(t, err, directory.ErrBorrowerInactive)
}

func TestResolveEmptyIdentifier(t *testing.T) {
	r := directory.NewResolver(nil)
	_, err := r.Resolve(context.Background(), &fakeLookup{}, directory.RoleStudent, "")
	require.ErrorIs(t, err, directory.ErrBorrowerNotFound)
}

func TestParseRole(t *testing.T) {
	role, err := directory.ParseRole("student")
	require.NoError(t, err)
	assert.Equal(t, directory.RoleStudent, role)

	_, err = directory.ParseRole("librarian")
	assert.Error(t, err)
}
