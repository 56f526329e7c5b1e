package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/subsync/internal/domain/account"
	"github.com/orris-inc/subsync/internal/infrastructure/persistence/models"
	"github.com/orris-inc/subsync/internal/shared/db"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// UserRepository reads application accounts. It never writes.
type UserRepository struct {
	db     *gorm.DB
	logger logger.Interface
}

// NewUserRepository creates a new read-only user repository
func NewUserRepository(db *gorm.DB, logger logger.Interface) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// FindByEmail returns the oldest account whose email matches, ignoring case
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if email == "" {
		return nil, nil
	}

	var model models.UserModel
	tx := db.GetTxFromContext(ctx, r.db)
	err := tx.Select("id", "email").
		Scopes(db.EmailEquals("email", email)).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to find user by email", "error", err)
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return &account.Account{ID: model.ID, Email: model.Email}, nil
}
