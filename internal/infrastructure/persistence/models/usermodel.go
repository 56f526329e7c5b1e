package models

import (
	"time"

	"github.com/orris-inc/subsync/internal/shared/constants"
)

// UserModel is the read-only view of the application users table. The table
// is owned by the main application; only id and email are read here.
type UserModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Email     string `gorm:"size:255;index"`
	CreatedAt time.Time
}

// TableName specifies the table name for GORM
func (UserModel) TableName() string {
	return constants.TableUsers
}
