// Package errors provides structured error types for famplan.
//
// Three families matter to callers: validation errors (a document or input is
// malformed), not-found errors (a task or member does not exist) and store
// errors (the persistence layer failed). Boundary layers map them to their own
// status codes through Category.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for famplan.
const (
	// Validation errors
	CodeDocumentInvalid Code = "DOCUMENT_INVALID"
	CodeInputInvalid    Code = "INPUT_INVALID"

	// Lookup errors
	CodeTaskNotFound   Code = "TASK_NOT_FOUND"
	CodeMemberNotFound Code = "MEMBER_NOT_FOUND"

	// Persistence errors
	CodeStoreFailed Code = "STORE_FAILED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"

	// Coordination errors
	CodeSyncLocked Code = "SYNC_LOCKED"
)

// Category groups error codes for status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeDocumentInvalid: CategoryBadRequest,
	CodeInputInvalid:    CategoryBadRequest,
	CodeTaskNotFound:    CategoryNotFound,
	CodeMemberNotFound:  CategoryNotFound,
	CodeStoreFailed:     CategoryInternal,
	CodeConfigInvalid:   CategoryBadRequest,
	CodeSyncLocked:      CategoryConflict,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	default:
		return 500
	}
}

// FamplanError is the structured error type for famplan.
type FamplanError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *FamplanError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *FamplanError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *FamplanError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for status mapping.
func (e *FamplanError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *FamplanError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *FamplanError) MarshalJSON() ([]byte, error) {
	type alias FamplanError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a FamplanError with the same code.
func (e *FamplanError) Is(target error) bool {
	t, ok := target.(*FamplanError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *FamplanError) WithCause(err error) *FamplanError {
	return &FamplanError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrDocumentInvalid returns a validation error for a source document.
func ErrDocumentInvalid(path, reason string) *FamplanError {
	return &FamplanError{
		Code: CodeDocumentInvalid,
		What: fmt.Sprintf("document %s is invalid", path),
		Why:  reason,
		Fix:  "Add a front-matter block with at least 'member: <slug>' at the top of the file",
	}
}

// ErrInputInvalid returns a validation error for caller-supplied input.
func ErrInputInvalid(field, reason string) *FamplanError {
	return &FamplanError{
		Code: CodeInputInvalid,
		What: fmt.Sprintf("invalid %s", field),
		Why:  reason,
	}
}

// ErrTaskNotFound returns an error when a task doesn't exist.
func ErrTaskNotFound(id string) *FamplanError {
	return &FamplanError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
		Why:  "No task with this ID exists in the store",
		Fix:  "Run 'famplan list --all' to see task IDs",
	}
}

// ErrMemberNotFound returns an error when a member slug is unknown.
func ErrMemberNotFound(slug string) *FamplanError {
	return &FamplanError{
		Code: CodeMemberNotFound,
		What: fmt.Sprintf("member %s not found", slug),
		Why:  "Members are created from document front-matter during sync",
		Fix:  "Run 'famplan sync' after adding a document for this member",
	}
}

// ErrStore wraps a persistence failure. The cause is kept verbatim.
func ErrStore(op string, cause error) *FamplanError {
	return &FamplanError{
		Code:  CodeStoreFailed,
		What:  op,
		Cause: cause,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *FamplanError {
	return &FamplanError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .famplan/config.yaml and FAMPLAN_* environment variables",
	}
}

// ErrSyncLocked returns an error when another process holds the named lock.
func ErrSyncLocked(name, owner string) *FamplanError {
	return &FamplanError{
		Code: CodeSyncLocked,
		What: fmt.Sprintf("%s is locked", name),
		Why:  fmt.Sprintf("Held by %s", owner),
		Fix:  "Stop the other process or wait for its lock to go stale",
	}
}

// AsFamplanError attempts to convert an error to a FamplanError.
// Returns nil if the error is not a FamplanError.
func AsFamplanError(err error) *FamplanError {
	var fe *FamplanError
	if stderrors.As(err, &fe) {
		return fe
	}
	return nil
}

func hasCode(err error, codes ...Code) bool {
	fe := AsFamplanError(err)
	if fe == nil {
		return false
	}
	for _, c := range codes {
		if fe.Code == c {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a document or input validation error.
func IsValidation(err error) bool {
	return hasCode(err, CodeDocumentInvalid, CodeInputInvalid)
}

// IsNotFound reports whether err is a task or member lookup failure.
func IsNotFound(err error) bool {
	return hasCode(err, CodeTaskNotFound, CodeMemberNotFound)
}

// IsStore reports whether err came from the persistence layer.
func IsStore(err error) bool {
	return hasCode(err, CodeStoreFailed)
}

// Wrap wraps a generic error into a FamplanError with unknown code.
func Wrap(err error, what string) *FamplanError {
	return &FamplanError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
