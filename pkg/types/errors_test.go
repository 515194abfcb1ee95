package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewCoreError(ErrorTransport, "transport", "host-1", "connect failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transport")
	assert.Contains(t, err.Error(), "host-1")
	assert.Contains(t, err.Error(), "connect failed")
}

func TestCoreErrorWithoutCause(t *testing.T) {
	err := NewCoreError(ErrorValidation, "spec", "guest-1", "unknown base_image_id", nil)
	assert.Nil(t, err.Unwrap())
	assert.Contains(t, err.Error(), "unknown base_image_id")
}
