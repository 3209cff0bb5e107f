// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrNoPosition         = errors.New("no open position")
	ErrPositionExists     = errors.New("position already open")
	ErrDataNotFound       = errors.New("data not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTimeout            = errors.New("operation timed out")
	ErrPoolClosed         = errors.New("worker pool closed")
	ErrAlreadyPublished   = errors.New("table already published")
	ErrNotPublished       = errors.New("table not published")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrNoValidSymbols     = errors.New("no valid symbols to run")
)

// DataError represents a data acquisition or validation failure. It is
// fatal to the affected symbol only; sibling symbols keep running.
type DataError struct {
	Symbol  string
	Stage   string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Stage, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Stage, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(symbol, stage, message string, err error) *DataError {
	return &DataError{
		Symbol:  symbol,
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// RejectionError represents a settlement the engine refused. Rejections
// are recoverable: the day's signal becomes a no-op and no state changes.
type RejectionError struct {
	Symbol string
	Action string
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settlement rejected [%s %s]: %s: %v", e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("settlement rejected [%s %s]: %s", e.Action, e.Symbol, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// NewRejectionError creates a new RejectionError.
func NewRejectionError(symbol, action, reason string, err error) *RejectionError {
	return &RejectionError{
		Symbol: symbol,
		Action: action,
		Reason: reason,
		Err:    err,
	}
}

// IsRejection reports whether err is a settlement rejection.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

// StrategyError represents a strategy callback failure on one day. The
// driver logs it with symbol and date and skips the day; the strategy
// simply misses that signal.
type StrategyError struct {
	Symbol string
	Date   time.Time
	Err    error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy error [%s %s]: %v", e.Symbol, e.Date.Format("2006-01-02"), e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// NewStrategyError creates a new StrategyError.
func NewStrategyError(symbol string, date time.Time, err error) *StrategyError {
	return &StrategyError{
		Symbol: symbol,
		Date:   date,
		Err:    err,
	}
}

// WorkerError represents a worker task failure, timeout included. It is
// isolated to its task and never aborts sibling tasks.
type WorkerError struct {
	Symbol   string
	WorkerID int
	Err      error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d [%s]: %v", e.WorkerID, e.Symbol, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// NewWorkerError creates a new WorkerError.
func NewWorkerError(symbol string, workerID int, err error) *WorkerError {
	return &WorkerError{
		Symbol:   symbol,
		WorkerID: workerID,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
