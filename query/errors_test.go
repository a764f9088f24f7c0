package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("page", "abc", "page must be a positive integer")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrBackend))
	assert.Equal(t, `page: page must be a positive integer (got "abc")`, err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ve))
	assert.Equal(t, "page", ve.Field)
}

func TestBackendError(t *testing.T) {
	err := NewBackendError("solr", "search", context.DeadlineExceeded)

	var be *BackendError
	assert.True(t, errors.As(err, &be))
	assert.True(t, be.Timeout())
	assert.True(t, errors.Is(err, ErrBackend))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	t.Run("not double wrapped", func(t *testing.T) {
		again := NewBackendError("guard", "search", err)
		assert.Same(t, err, again)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NewBackendError("solr", "search", nil))
	})
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("catalog.endpoint", "catalog.xml", "must start with /")
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "catalog.endpoint")
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("id", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	var fe *FieldError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "id", fe.Field)
}
