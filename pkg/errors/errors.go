// Package errors defines the coded errors that exprflow returns.
//
// Every failure the pipeline reports carries a [Code]. Codes fall into a
// [Category] that the CLI turns into an exit status and the HTTP server
// into a response status:
//
//   - INVALID_*: the caller supplied a bad bundle, level list, formula or flag
//   - *_NOT_FOUND: a dataset, file or stored record does not exist
//   - NETWORK_ERROR, TIMEOUT, MAPPING_UNAVAILABLE: a remote service failed
//   - FIT_FAILED, INTERNAL_ERROR, UNSUPPORTED: everything else
//
// Usage:
//
//	err := errors.New(errors.ErrCodeInvalidLevels, "level %q is not in %v", lvl, levels)
//	if errors.Is(err, errors.ErrCodeInvalidLevels) {
//	    ...
//	}
//
//	err = errors.Wrap(errors.ErrCodeNetwork, err, "query %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidLevels  Code = "INVALID_LEVELS"
	ErrCodeInvalidFormula Code = "INVALID_FORMULA"
	ErrCodeInvalidFormat  Code = "INVALID_FORMAT"
	ErrCodeInvalidBundle  Code = "INVALID_BUNDLE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeDatasetNotFound Code = "DATASET_NOT_FOUND"
	ErrCodeFileNotFound    Code = "FILE_NOT_FOUND"

	ErrCodeNetwork            Code = "NETWORK_ERROR"
	ErrCodeTimeout            Code = "TIMEOUT"
	ErrCodeMappingUnavailable Code = "MAPPING_UNAVAILABLE"

	ErrCodeFitFailed   Code = "FIT_FAILED"
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Category groups codes by who has to act on them.
type Category int

const (
	CategoryInternal Category = iota
	CategoryInput
	CategoryNotFound
	CategoryRemote
)

var categories = map[Code]Category{
	ErrCodeInvalidInput:       CategoryInput,
	ErrCodeInvalidLevels:      CategoryInput,
	ErrCodeInvalidFormula:     CategoryInput,
	ErrCodeInvalidFormat:      CategoryInput,
	ErrCodeInvalidBundle:      CategoryInput,
	ErrCodeInvalidPath:        CategoryInput,
	ErrCodeNotFound:           CategoryNotFound,
	ErrCodeDatasetNotFound:    CategoryNotFound,
	ErrCodeFileNotFound:       CategoryNotFound,
	ErrCodeNetwork:            CategoryRemote,
	ErrCodeTimeout:            CategoryRemote,
	ErrCodeMappingUnavailable: CategoryRemote,
}

// Category returns the group c belongs to. Unknown codes are internal.
func (c Code) Category() Category {
	return categories[c]
}

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error with code and a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap is like [New] but records cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// find returns the outermost *Error in err's chain.
func find(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Is reports whether the outermost coded error in err's chain has code.
func Is(err error, code Code) bool {
	return GetCode(err) == code && code != ""
}

// GetCode returns the code of the outermost coded error, or "".
func GetCode(err error) Code {
	if e, ok := find(err); ok {
		return e.Code
	}
	return ""
}

// UserMessage returns the message of a coded error without its code, or
// err.Error() for other errors.
func UserMessage(err error) string {
	if e, ok := find(err); ok {
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err aborts a pipeline run. An unavailable mapping
// service only downgrades the run to a warning.
func IsFatal(err error) bool {
	return err != nil && GetCode(err) != ErrCodeMappingUnavailable
}

// ExitCode is the process status for err: 0 for nil, 2 for invalid input,
// 3 for missing resources and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err).Category() {
	case CategoryInput:
		return 2
	case CategoryNotFound:
		return 3
	}
	return 1
}
