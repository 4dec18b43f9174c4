package efficiency

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors. FieldError values unwrap to one of the first four so callers
// can branch with errors.Is without inspecting messages.
var (
	ErrInvalidDivisor      = errors.New("total hours worked must be greater than zero")
	ErrNegativeQuantity    = errors.New("quantity must not be negative")
	ErrTypeMismatch        = errors.New("value is not a number")
	ErrMissingField        = errors.New("field is required")
	ErrEmptyAggregateInput = errors.New("no scores to aggregate")
)

// FieldError is a validation failure tied to one input field.
type FieldError struct {
	Field string
	Err   error // one of the sentinels above
	Value any   // offending input, nil when missing
}

func (e *FieldError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v (got %v)", e.Field, e.Err, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ValidationError collects every FieldError produced while validating one input.
type ValidationError struct {
	Errs []*FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, fe := range e.Errs {
		msgs = append(msgs, fe.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual field errors to errors.Is / errors.As.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Errs))
	for i, fe := range e.Errs {
		out[i] = fe
	}
	return out
}

// Fields returns the failures keyed by field name, the shape form views render
// next to each input.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errs))
	for _, fe := range e.Errs {
		if _, dup := out[fe.Field]; dup {
			continue
		}
		out[fe.Field] = fe.Err.Error()
	}
	return out
}

// Has reports whether field failed with target.
func (e *ValidationError) Has(field string, target error) bool {
	for _, fe := range e.Errs {
		if fe.Field == field && errors.Is(fe.Err, target) {
			return true
		}
	}
	return false
}

// add appends a field failure.
func (e *ValidationError) add(field string, err error, value any) {
	e.Errs = append(e.Errs, &FieldError{Field: field, Err: err, Value: value})
}

// orNil returns e as an error if it holds failures, sorted by field for stable
// output, or nil otherwise.
func (e *ValidationError) orNil() error {
	if len(e.Errs) == 0 {
		return nil
	}
	sort.SliceStable(e.Errs, func(i, j int) bool { return e.Errs[i].Field < e.Errs[j].Field })
	return e
}

// Merge combines validation errors from several sources into one. Non-validation
// errors are returned unchanged; nil inputs are skipped.
func Merge(errs ...error) error {
	out := &ValidationError{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		out.Errs = append(out.Errs, ve.Errs...)
	}
	return out.orNil()
}

// Invalid builds a single-field ValidationError. Used by callers validating
// fields this package does not know about (downtime reasons, dates).
func Invalid(field string, err error, value any) error {
	ve := &ValidationError{}
	ve.add(field, err, value)
	return ve
}
