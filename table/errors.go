package table

import (
	"errors"
	"fmt"
)

// Registration errors
var (
	ErrInvalidSchema  = errors.New("table: invalid schema")
	ErrDuplicateTable = errors.New("table: table already registered")
	ErrMaxTables      = errors.New("table: maximum number of tables reached")
	ErrInvalidHandle  = errors.New("table: invalid table handle")
)

// Load errors
var (
	ErrLoadFailed        = errors.New("table: load failed")
	ErrUnsupportedFormat = errors.New("table: unsupported image format")
	ErrUnknownField      = errors.New("table: unknown field")
	ErrMissingField      = errors.New("table: missing field")
	ErrFieldOverflow     = errors.New("table: value does not fit field type")
	ErrImageSize         = errors.New("table: image size does not match schema")
)

// Validation and access errors
var (
	ErrValidationFailed = errors.New("table: validation failed")
	ErrOutOfRange       = errors.New("table: value out of range")
	ErrNeverLoaded      = errors.New("table: table has never been loaded")
	ErrNotHeld          = errors.New("table: table address not held")
)

// OutOfRangeCode is the validation code reported for a bound violation
const OutOfRangeCode int32 = -1

// RangeError reports a field value above its declared bound
type RangeError struct {
	Field string
	Value uint64
	Max   uint64
	Code  int32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("table: field %s = %d exceeds %d (code %d)", e.Field, e.Value, e.Max, e.Code)
}

// Is matches ErrOutOfRange
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// ValidationError wraps the reason a candidate image was rejected
type ValidationError struct {
	Table  string
	Source string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("table: %s rejected image from %s: %v", e.Table, e.Source, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches ErrValidationFailed
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ValidationCode extracts the validation code carried by err, if any
func ValidationCode(err error) (int32, bool) {
	var rangeErr *RangeError
	if errors.As(err, &rangeErr) {
		return rangeErr.Code, true
	}
	return 0, false
}
