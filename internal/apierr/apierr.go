// Package apierr is the single unified error shape that crosses the
// core/transport boundary (spec.md §7, ERROR HANDLING DESIGN). It mirrors
// the teacher's llm.Error interface (Provider/StatusCode/Retryable) but
// generalizes it to the skill protocol's {code, kind, http status} triples.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable failure category.
type Kind string

const (
	KindDuplicateSkill      Kind = "duplicate_skill"
	KindValidationFailed    Kind = "validation_failed"
	KindInvalidCode         Kind = "invalid_code"
	KindRegInternal         Kind = "internal_error"
	KindSkillNotFound       Kind = "skill_not_found"
	KindInvalidInputs       Kind = "invalid_inputs"
	KindExecutionTimeout    Kind = "execution_timeout"
	KindExecutionFailed     Kind = "execution_failed"
	KindOverloaded          Kind = "overloaded"
	KindOutputSchemaViolate Kind = "output_schema_violation"
	KindInvInternal         Kind = "internal_error"
	KindInvalidWorkflow     Kind = "invalid_workflow"
	KindCyclicWorkflow      Kind = "cyclic_workflow"
	KindOrcInternal         Kind = "internal_error"
	KindNotFound            Kind = "not_found"
)

// Error is the unified error type. Its Code field matches spec.md §7
// exactly (e.g. "SKILL_REG_001").
type Error struct {
	code       string
	kind       Kind
	httpStatus int
	message    string
	details    any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.code, e.kind, e.message)
}

func (e *Error) Code() string     { return e.code }
func (e *Error) Kind() Kind       { return e.kind }
func (e *Error) HTTPStatus() int  { return e.httpStatus }
func (e *Error) Message() string  { return e.message }
func (e *Error) Details() any     { return e.details }
func (e *Error) WithDetails(d any) *Error {
	n := *e
	n.details = d
	return &n
}

func newErr(code string, kind Kind, status int, format string, args ...any) *Error {
	return &Error{code: code, kind: kind, httpStatus: status, message: fmt.Sprintf(format, args...)}
}

// Registration errors (spec.md §7).
func DuplicateSkill(skillID, version string) *Error {
	return newErr("SKILL_REG_001", KindDuplicateSkill, 409,
		"skill %s version %s already registered", skillID, version)
}

func RegValidationFailed(format string, args ...any) *Error {
	return newErr("SKILL_REG_002", KindValidationFailed, 422, format, args...)
}

func InvalidCode(format string, args ...any) *Error {
	return newErr("SKILL_REG_003", KindInvalidCode, 400, format, args...)
}

func RegInternal(format string, args ...any) *Error {
	return newErr("SKILL_REG_999", KindRegInternal, 500, format, args...)
}

// Invocation errors.
func SkillNotFound(skillID string) *Error {
	return newErr("SKILL_INV_001", KindSkillNotFound, 404, "skill %s not found", skillID)
}

func InvalidInputs(format string, args ...any) *Error {
	return newErr("SKILL_INV_002", KindInvalidInputs, 422, format, args...)
}

func ExecutionTimeout(executionID string) *Error {
	return newErr("SKILL_INV_003", KindExecutionTimeout, 504, "execution %s timed out", executionID)
}

func Overloaded() *Error {
	return newErr("SKILL_INV_004", KindOverloaded, 500, "scheduler at capacity")
}

func OutputSchemaViolation(format string, args ...any) *Error {
	return newErr("SKILL_INV_004", KindOutputSchemaViolate, 500, format, args...)
}

func ExecutionFailed(format string, args ...any) *Error {
	return newErr("SKILL_INV_004", KindExecutionFailed, 500, format, args...)
}

func InvInternal(format string, args ...any) *Error {
	return newErr("SKILL_INV_999", KindInvInternal, 500, format, args...)
}

// Orchestration errors.
func InvalidWorkflow(format string, args ...any) *Error {
	return newErr("SKILL_ORC_001", KindInvalidWorkflow, 422, format, args...)
}

func CyclicWorkflow(format string, args ...any) *Error {
	return newErr("SKILL_ORC_002", KindCyclicWorkflow, 400, format, args...)
}

func OrcInternal(format string, args ...any) *Error {
	return newErr("SKILL_ORC_999", KindOrcInternal, 500, format, args...)
}

// ExecutionNotFound covers GET /skill/status/{execution_id} lookups; it
// reuses the invocation "not found" HTTP mapping.
func ExecutionNotFound(executionID string) *Error {
	return newErr("SKILL_INV_001", KindNotFound, 404, "execution %s not found", executionID)
}

// As unwraps err into *Error if it is (or wraps) one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
