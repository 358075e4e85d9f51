package render

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/itsatony/go-cuserr"
)

// Error message constants
const (
	ErrMsgFileAccess          = "template file could not be read"
	ErrMsgNotIterable         = "forEach collection is not a sequence"
	ErrMsgMalformedExpression = "malformed placeholder expression"
	ErrMsgRecursionLimit      = "partial nesting limit exceeded"
	ErrMsgTransform           = "line transform failed"
	ErrMsgInvalidOptions      = "invalid renderer options"
)

// Error code constants for categorization
const (
	ErrCodeFileAccess          = "RENDER_FILE_ACCESS"
	ErrCodeNotIterable         = "RENDER_NOT_ITERABLE"
	ErrCodeMalformedExpression = "RENDER_MALFORMED_EXPRESSION"
	ErrCodeRecursionLimit      = "RENDER_RECURSION_LIMIT"
	ErrCodeTransform           = "RENDER_TRANSFORM"
	ErrCodeConfig              = "RENDER_CONFIG"
)

// Metadata keys attached to render errors
const (
	MetaKeyPath       = "path"
	MetaKeyRole       = "role"
	MetaKeyExpression = "expression"
	MetaKeyCollection = "collection"
	MetaKeyType       = "type"
	MetaKeyDepth      = "depth"
	MetaKeyField      = "field"
)

// Values of MetaKeyRole on file access errors
const (
	RoleEntry   = "entry"
	RolePartial = "partial"
)

// Sentinels reachable with errors.Is on every error returned by this package.
var (
	ErrFileAccess          = errors.New(ErrMsgFileAccess)
	ErrNotIterable         = errors.New(ErrMsgNotIterable)
	ErrMalformedExpression = errors.New(ErrMsgMalformedExpression)
	ErrRecursionLimit      = errors.New(ErrMsgRecursionLimit)
	ErrTransform           = errors.New(ErrMsgTransform)
	ErrInvalidOptions      = errors.New(ErrMsgInvalidOptions)
)

// NewFileAccessError reports an unreadable entry template or partial.
// The cause stays reachable, so errors.Is(err, fs.ErrNotExist) works.
func NewFileAccessError(path, role string, cause error) error {
	return cuserr.WrapStdError(fmt.Errorf("%w: %w", ErrFileAccess, cause), ErrCodeFileAccess, ErrMsgFileAccess).
		WithMetadata(MetaKeyPath, path).
		WithMetadata(MetaKeyRole, role)
}

// NewNotIterableError reports a forEach collection that is missing or not a slice.
func NewNotIterableError(collection string, value any) error {
	return cuserr.WrapStdError(ErrNotIterable, ErrCodeNotIterable, ErrMsgNotIterable).
		WithMetadata(MetaKeyCollection, collection).
		WithMetadata(MetaKeyType, fmt.Sprintf("%T", value))
}

// NewMalformedExpressionError reports a partial or forEach expression that
// does not have the expected shape.
func NewMalformedExpressionError(expr string) error {
	return cuserr.WrapStdError(ErrMalformedExpression, ErrCodeMalformedExpression, ErrMsgMalformedExpression).
		WithMetadata(MetaKeyExpression, expr)
}

// NewRecursionLimitError reports partials nested deeper than the configured limit.
func NewRecursionLimitError(path string, depth int) error {
	return cuserr.WrapStdError(ErrRecursionLimit, ErrCodeRecursionLimit, ErrMsgRecursionLimit).
		WithMetadata(MetaKeyPath, path).
		WithMetadata(MetaKeyDepth, strconv.Itoa(depth))
}

// NewTransformError wraps a failure of the line transformer.
func NewTransformError(cause error) error {
	return cuserr.WrapStdError(fmt.Errorf("%w: %w", ErrTransform, cause), ErrCodeTransform, ErrMsgTransform)
}

// NewInvalidOptionsError reports a renderer option that cannot be used.
func NewInvalidOptionsError(field, reason string) error {
	return cuserr.WrapStdError(fmt.Errorf("%w: %s", ErrInvalidOptions, reason), ErrCodeConfig, ErrMsgInvalidOptions).
		WithMetadata(MetaKeyField, field)
}

// ErrorCode returns the code of a render error, or "" for foreign errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrFileAccess):
		return ErrCodeFileAccess
	case errors.Is(err, ErrNotIterable):
		return ErrCodeNotIterable
	case errors.Is(err, ErrMalformedExpression):
		return ErrCodeMalformedExpression
	case errors.Is(err, ErrRecursionLimit):
		return ErrCodeRecursionLimit
	case errors.Is(err, ErrTransform):
		return ErrCodeTransform
	case errors.Is(err, ErrInvalidOptions):
		return ErrCodeConfig
	default:
		return ""
	}
}
