// Package common defines shared constants and sentinel errors used across
// the ledger, codec and transport layers of FundKeeper. Callers should use
// errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")
	ErrStore          = errors.New("store error")

	// Codec errors.
	ErrDecode           = errors.New("image decode error")
	ErrArtifactTooLarge = errors.New("artifact too large")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError reports malformed or out-of-range input with per-field detail.
type ValidationError struct {
	Fields map[string]string
}

// Add records a problem with field. The first message for a field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// OrNil returns e when at least one field failed, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrorValidation }

// NewValidationError builds a single-field ValidationError.
func NewValidationError(field, msg string) *ValidationError {
	e := &ValidationError{}
	e.Add(field, msg)
	return e
}

// DecodeError wraps a failure to read user supplied image bytes.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image decode error: %v", e.Err)
}

// Unwrap exposes both ErrDecode and the underlying cause.
func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// StoreError wraps a persistence failure. Callers may retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrStore and the underlying cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// WrapStore turns a repository error into a StoreError unless it already
// carries a domain meaning (not found, version conflict, validation).
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrorNotFound) || errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrorValidation) || errors.Is(err, ErrStore) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// ConsistencyWarning is raised when a project's cached current amount does
// not match the newTotal of its last history entry. It is not fatal.
type ConsistencyWarning struct {
	ProjectID string
	Stored    decimal.Decimal
	Expected  decimal.Decimal
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("project %s: current amount %s does not match history total %s",
		w.ProjectID, w.Stored.String(), w.Expected.String())
}
