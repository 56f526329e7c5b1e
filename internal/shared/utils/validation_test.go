package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/shared/errors"
)

type syncRequest struct {
	CustomerID string `json:"customer_id" validate:"required_without=Email,omitempty,provider_id"`
	Email      string `json:"email" validate:"omitempty,email"`
	Limit      int    `json:"limit" validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid customer id", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(syncRequest{CustomerID: "cus_ABC123"}))
	})

	t.Run("valid email only", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(syncRequest{Email: "a@example.com"}))
	})

	t.Run("neither provided", func(t *testing.T) {
		err := ValidateStruct(syncRequest{})
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
		assert.Contains(t, errors.GetAppError(err).Details, "customer_id is required when Email is absent")
	})

	t.Run("malformed provider id", func(t *testing.T) {
		err := ValidateStruct(syncRequest{CustomerID: "not an id"})
		require.Error(t, err)
		assert.Contains(t, errors.GetAppError(err).Details, "customer_id must be a billing provider id")
	})

	t.Run("negative limit", func(t *testing.T) {
		err := ValidateStruct(syncRequest{Email: "a@example.com", Limit: -1})
		require.Error(t, err)
		assert.Contains(t, errors.GetAppError(err).Details, "limit must be greater than or equal to 0")
	})
}
