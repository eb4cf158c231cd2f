package invoice

import (
	"errors"
	"fmt"
)

const (
	CodeValidation    = "validation"
	CodeNotFound      = "not_found"
	CodeStageConflict = "stage_conflict"
	CodeInternal      = "internal"
)

// Error is the pipeline's typed failure: a stable code plus an HTTP-ish
// status for callers that surface it over a transport.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeStageConflict:
		return 409
	default:
		return 500
	}
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusForCode(code)}
}

func NewValidationError(message string) error {
	return newError(CodeValidation, message)
}

func NewNotFoundError(id string) error {
	return newError(CodeNotFound, "invoice not found: "+id)
}

// NewStageConflictError names both stages so a rejected out-of-order
// transition is self-explanatory.
func NewStageConflictError(current, expected PaymentStage) error {
	return newError(CodeStageConflict, fmt.Sprintf("invoice is in stage %q, transition requires stage %q", current, expected))
}

func NewInternalError(message string) error {
	return newError(CodeInternal, message)
}

func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func IsStageConflict(err error) bool {
	return ErrorCode(err) == CodeStageConflict
}
