package common

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is across package boundaries.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrConfig       = errors.New("configuration error")
)

// AppError carries a stable machine code next to the human message. Cause
// keeps the sentinel reachable through Unwrap.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// DatabaseError tags a storage failure so callers can match ErrDatabase.
func DatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewAppError("DB_ERROR", op, errors.Join(ErrDatabase, err))
}

// ConfigError tags a configuration failure so callers can match ErrConfig.
func ConfigError(message string, err error) error {
	return NewAppError("CONFIG_ERROR", message, errors.Join(ErrConfig, err))
}

// Exit codes shared by the commands.
const (
	ExitOK    = 0
	ExitFail  = 1
	ExitUsage = 2
)

// ExitCode maps err to a process exit status. Bad configuration and bad
// operator input are usage errors; everything else is a runtime failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig), errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return ExitUsage
	default:
		return ExitFail
	}
}
