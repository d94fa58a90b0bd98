package batch

import (
	"errors"
	"fmt"
	"strings"
)

// Row-level error taxonomy shared by ingestion and the outreach engine. Domain
// packages wrap these with %w so callers can classify with errors.Is.
var (
	ErrValidation          = errors.New("validation_error")
	ErrMatchNotFound       = errors.New("match_not_found")
	ErrAlreadySettled      = errors.New("already_settled")
	ErrConflictIgnored     = errors.New("conflict_ignored")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
)

// RowError ties a failure to its position in the batch.
type RowError struct {
	Row int
	Ref string
	Err error
}

func NewRowError(row int, ref string, err error) RowError {
	return RowError{Row: row, Ref: strings.TrimSpace(ref), Err: err}
}

func (e RowError) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Row > 0 && e.Ref != "":
		return fmt.Sprintf("row %d (%s): %s", e.Row, e.Ref, msg)
	case e.Row > 0:
		return fmt.Sprintf("row %d: %s", e.Row, msg)
	case e.Ref != "":
		return fmt.Sprintf("%s: %s", e.Ref, msg)
	default:
		return msg
	}
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Upstreamf builds an error wrapping ErrUpstreamUnavailable.
func Upstreamf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, fmt.Sprintf(format, args...))
}
