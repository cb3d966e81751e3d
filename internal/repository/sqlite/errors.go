package sqlite

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateSchema is returned by InitSchema on an already initialized store
	ErrDuplicateSchema = errors.New("schema already initialized")

	// ErrSchemaCompatibility marks a write that referenced columns the store's
	// schema revision does not have
	ErrSchemaCompatibility = errors.New("schema revision lacks column")
)

// StoreError wraps a storage fault with the operation that hit it
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// isSchemaCompatibility classifies driver errors caused by a missing column
func isSchemaCompatibility(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaCompatibility) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "has no column named") || strings.Contains(msg, "no such column")
}

func isDuplicateTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}
