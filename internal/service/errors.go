// Package service holds the member registry business rules: who may do
// what, which input is acceptable, and how the record store and the
// notification channel are driven.
package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/union-registry/internal/repository"
)

var (
	// ErrForbidden is returned when the caller's role or member link does
	// not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrIntegrity wraps failures that leave the registry unable to assign
	// an identifier or otherwise keep its invariants.
	ErrIntegrity = errors.New("integrity failure")
)

// ValidationError collects every field failure of one request.  Fields
// maps the JSON field name to a single message.  Duplicates names the
// fields that failed only because the value is already taken.
type ValidationError struct {
	Fields     map[string]string
	Duplicates []string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// add records msg for field unless the field already has a message.
func (e *ValidationError) add(field, msg string) {
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
}

func (e *ValidationError) addDuplicate(field string) {
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = "has already been taken"
	e.Duplicates = append(e.Duplicates, field)
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

// OnlyDuplicates reports whether every failing field is a uniqueness
// failure.
func (e *ValidationError) OnlyDuplicates() bool {
	return len(e.Duplicates) > 0 && len(e.Duplicates) == len(e.Fields)
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, repository.ErrDuplicate) match uniqueness
// failures.
func (e *ValidationError) Is(target error) bool {
	return target == repository.ErrDuplicate && len(e.Duplicates) > 0
}

// integrity marks err as an integrity failure while keeping the cause
// reachable through errors.Is.
func integrity(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIntegrity, err)
}
