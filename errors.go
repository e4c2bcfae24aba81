package dynamodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Error kinds. Every error returned by a Table operation matches one of these
// with errors.Is. Rendering failures additionally match ErrCondition.
var (
	// ErrConfiguration is returned when the table does not exist or its description
	// is missing the key schema.
	ErrConfiguration = errors.New("dynamodel: configuration error")

	// ErrAttribute is returned when a schema does not declare the table's key attributes,
	// or when an item references an attribute the schema does not know.
	ErrAttribute = errors.New("dynamodel: attribute error")

	// ErrQuery is returned for invalid key conditions, unknown indexes and rejected reads.
	ErrQuery = errors.New("dynamodel: query error")

	// ErrNotFound is returned when a point lookup matches no item.
	ErrNotFound = errors.New("dynamodel: item not found")

	// ErrPut is returned when an item cannot be written with PutItem.
	ErrPut = errors.New("dynamodel: put item error")

	// ErrUpdate is returned when an item cannot be written with UpdateItem.
	ErrUpdate = errors.New("dynamodel: update item error")

	// ErrCondition is returned when a condition cannot be rendered.
	ErrCondition = errors.New("dynamodel: invalid condition")

	// ErrUnsupportedType is returned when a Go type has no wire representation.
	ErrUnsupportedType = errors.New("dynamodel: unsupported type")
)

// Error carries the context of a failed operation. Kind is one of the package
// error kinds; Key holds the attempted key or condition values, when known.
type Error struct {
	Kind       error
	Op         string
	Message    string
	Key        map[string]any
	Validation bool // set for pre-flight and parameter validation failures
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withKey(key map[string]any) *Error {
	e.Key = key
	return e
}

func (e *Error) withCause(cause error) *Error {
	e.Cause = cause
	return e
}

// isConditionFailed reports whether err is a failed condition check on a write.
func isConditionFailed(err error) bool {
	var ccfe *types.ConditionalCheckFailedException
	return errors.As(err, &ccfe)
}

func isTableNotFound(err error) bool {
	var rnfe *types.ResourceNotFoundException
	return errors.As(err, &rnfe)
}

// isValidationError reports whether the request was rejected before it reached the
// store, or rejected by the store as malformed.
func isValidationError(err error) bool {
	var invalid smithy.InvalidParamsError
	if errors.As(err, &invalid) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}

// storeMessage extracts the message the store attached to err.
func storeMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}
