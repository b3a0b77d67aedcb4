// Package errors defines the coded error taxonomy shared by the extraction
// pipeline.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode classifies a DomainError.
type ErrorCode string

const (
	// CodeLoad marks discovery failures: unreadable files, bad query
	// definitions, duplicate query names.
	CodeLoad ErrorCode = "LOAD_ERROR"
	// CodeQueryCompilation marks a structural pattern the grammar rejects.
	CodeQueryCompilation ErrorCode = "QUERY_COMPILATION"
	// CodeInvalidParameter marks a rejected query parameter binding.
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"
	// CodeUnknownKind marks a Type whose kind the emitter cannot render.
	CodeUnknownKind ErrorCode = "UNKNOWN_KIND"
	CodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// Context keys.
const (
	CtxPath  = "path"
	CtxQuery = "query"
	CtxType  = "type"
	CtxParam = "param"
)

// DomainError is an error carrying a code and optional context.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

// WithContext attaches key=value to the error and returns it.
func (e *DomainError) WithContext(key string, value any) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		msg += " (" + strings.Join(parts, " ") + ")"
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// New returns a DomainError with the given code.
func New(code ErrorCode, msg string) *DomainError {
	return &DomainError{Code: code, Message: msg}
}

// Newf is New with a format string.
func Newf(code ErrorCode, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a DomainError with the given code wrapping err.
func Wrap(err error, code ErrorCode, msg string) *DomainError {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches context to err. Errors that are not DomainErrors are
// wrapped as internal errors.
func AddContext(err error, key string, value any) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return err
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]any{key: value},
	}
}

// IsCode reports whether any DomainError in err's chain has the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the code of the outermost DomainError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}
