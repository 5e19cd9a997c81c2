package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vytor/lexisync/internal/errors"
)

func TestCodeOf_Wrapped(t *testing.T) {
	base := errors.NewRemoteUnavailableError("fetch", fmt.Errorf("dial tcp: refused"))
	wrapped := fmt.Errorf("reconcile owner u1: %w", base)

	assert.Equal(t, errors.ErrCodeRemoteUnavailable, errors.CodeOf(wrapped))
	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeRemoteUnavailable))
	assert.False(t, errors.IsCode(wrapped, errors.ErrCodeRemoteRejected))
	assert.Contains(t, wrapped.Error(), "dial tcp: refused")
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, "", errors.CodeOf(fmt.Errorf("boom")))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeInternal))
}

func TestConstructors_Status(t *testing.T) {
	tests := []struct {
		name   string
		err    *errors.AppError
		code   string
		status int
	}{
		{"identity required", errors.NewIdentityRequiredError("sync"), errors.ErrCodeIdentityRequired, 409},
		{"remote unavailable", errors.NewRemoteUnavailableError("put", nil), errors.ErrCodeRemoteUnavailable, 503},
		{"remote rejected", errors.NewRemoteRejectedError("bad record", nil), errors.ErrCodeRemoteRejected, 422},
		{"corrupt decode", errors.NewLocalCorruptDecodeError("entry:1", nil), errors.ErrCodeLocalCorruptDecode, 500},
		{"persist", errors.NewLocalPersistError("entry:1", nil), errors.ErrCodeLocalPersist, 500},
		{"not found", errors.NewNotFoundError("entry", "x"), errors.ErrCodeNotFound, 404},
		{"validation", errors.NewValidationError("quality", "out of range"), errors.ErrCodeValidation, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
}
