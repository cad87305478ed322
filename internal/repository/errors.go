package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// ConflictError is an integrity violation raised by the store: a unique key,
// a foreign key, a check or a not-null constraint.
type ConflictError struct {
	Entity     string
	Value      string
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("integrity conflict on %s (%s): constraint %s", e.Entity, e.Value, e.Constraint)
	}
	return fmt.Sprintf("integrity conflict on %s (%s)", e.Entity, e.Value)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func (e *ConflictError) IsTransient() bool {
	return false
}

// integrity violation codes (SQLSTATE class 23)
const (
	pqNotNullViolation    = "23502"
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
)

// classifyError turns integrity violations into *ConflictError and wraps
// everything else with the operation name.
func classifyError(op, entity, value string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqNotNullViolation, pqForeignKeyViolation, pqUniqueViolation, pqCheckViolation:
			return &ConflictError{
				Entity:     entity,
				Value:      value,
				Constraint: pqErr.Constraint,
				Err:        err,
			}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
