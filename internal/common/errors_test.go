package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection reset")
	err := DatabaseError("append ingest log", cause)

	assert.ErrorIs(t, err, ErrDatabase)
	assert.ErrorIs(t, err, cause)

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "DB_ERROR", appErr.Code)
	assert.Nil(t, DatabaseError("noop", nil))
}

func TestAppErrorMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: linked account u1", NewAppError("NOT_FOUND", "linked account u1", nil).Error())
	err := NewAppError("NOT_FOUND", "linked account u1", ErrNotFound)
	assert.Equal(t, "NOT_FOUND: linked account u1: resource not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", ConfigError("read inbox.yaml", errors.New("no such file")), ExitUsage},
		{"validation", fmt.Errorf("%w: Database.DSN failed \"required\"", ErrValidation), ExitUsage},
		{"invalid input", fmt.Errorf("--user is required: %w", ErrInvalidInput), ExitUsage},
		{"database", DatabaseError("list ledger", errors.New("timeout")), ExitFail},
		{"not found", NewAppError("NOT_FOUND", "x", ErrNotFound), ExitFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
