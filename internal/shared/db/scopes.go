// Package db provides database utilities including transaction management and query scopes.
package db

import (
	"strings"

	"gorm.io/gorm"
)

// EmailEquals matches column against email case-insensitively. The comparison
// value is lowered in Go so indexes on LOWER(column) can be used on MySQL.
//
//	db.Model(&Model{}).Scopes(db.EmailEquals("user_email", email)).First(&m)
func EmailEquals(column, email string) func(db *gorm.DB) *gorm.DB {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER("+column+") = ?", normalized)
	}
}

// Unresolved filters orphan rows that have not been healed yet.
func Unresolved() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("resolved = ?", false)
	}
}
