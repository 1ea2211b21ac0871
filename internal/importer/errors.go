package importer

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
)

// ValidationError aborts a whole import before anything is written:
// missing columns, an empty file, or a missing account context.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(reason string) error { return &ValidationError{Reason: reason} }

// PersistenceError wraps a gateway failure. The whole batch must be treated
// as not durable.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SkipReason says why a row was not imported.
type SkipReason string

const (
	SkipMissingDate        SkipReason = "missing date"
	SkipMissingDescription SkipReason = "missing description"
	SkipBadAmount          SkipReason = "unparseable amount"
	SkipZeroAmount         SkipReason = "zero amount"
)

// Skip is a row that was counted but not imported.
type Skip struct {
	Line   int
	Reason SkipReason
}
