package core

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrBadRequest         ErrorCode = "NUFFI_BAD_REQUEST"
	ErrValidation         ErrorCode = "NUFFI_VALIDATION"
	ErrNotFoundCode       ErrorCode = "NUFFI_NOT_FOUND"
	ErrConflictInstalling ErrorCode = "NUFFI_CONFLICT_INSTALLING"
	ErrConflictIdempotent ErrorCode = "NUFFI_CONFLICT_IDEMPOTENT_MISMATCH"
	ErrStepFailed         ErrorCode = "NUFFI_STEP_FAILED"
	ErrInternal           ErrorCode = "NUFFI_INTERNAL"
	ErrExecutorError      ErrorCode = "NUFFI_EXECUTOR_ERROR"
	ErrExecutorTimeout    ErrorCode = "NUFFI_EXECUTOR_TIMEOUT"
)

// HTTPStatus returns the HTTP status code for this error code.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrBadRequest:
		return 400
	case ErrNotFoundCode:
		return 404
	case ErrConflictInstalling, ErrConflictIdempotent:
		return 409
	case ErrValidation:
		return 422
	case ErrExecutorError:
		return 502
	case ErrExecutorTimeout:
		return 504
	default:
		return 500
	}
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("installation already in progress")
	ErrCancelled = errors.New("cancelled")
	ErrTimeout   = errors.New("installation timed out")
	// ErrNotInstalling rejects run writes to a workspace that left the installing state.
	ErrNotInstalling = errors.New("workspace is not installing")
)

// StepError is a failure of one install step. It is terminal for the run.
type StepError struct {
	Step StepID
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ValidationError marks malformed template or manifest data.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// AsAppError maps domain errors onto the API error taxonomy.
func AsAppError(err error) *AppError {
	var appErr *AppError
	var valErr *ValidationError
	var stepErr *StepError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrNotFound):
		return NewAppError(ErrNotFoundCode, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotInstalling):
		return NewAppError(ErrConflictInstalling, err.Error())
	case errors.As(err, &valErr):
		return NewAppError(ErrValidation, valErr.Error())
	case errors.As(err, &stepErr):
		return NewAppError(ErrStepFailed, stepErr.Error())
	default:
		return NewAppError(ErrInternal, err.Error())
	}
}
