package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestAppError_WrappedLookup(t *testing.T) {
	err := fmt.Errorf("sync customer cus_123: %w", NewNotFoundError("customer not found", "cus_123"))

	appErr := GetAppError(err)
	if assert.NotNil(t, appErr) {
		assert.Equal(t, http.StatusNotFound, appErr.Code)
		assert.Equal(t, "not_found: customer not found (cus_123)", appErr.Error())
	}
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsConflictError(err))
	assert.Nil(t, GetAppError(errors.New("plain")))
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"mysql", errors.New("Error 1062 (23000): Duplicate entry 'sub_1' for key 'uk_user_subscriptions_subscription_id'"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: user_subscriptions.subscription_id"), true},
		{"other", errors.New("deadlock found when trying to get lock"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicateError(tt.err))
		})
	}
}
