package models

import (
	"strings"
	"time"
)

// User represents an account that can authenticate with the API.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"-" bson:"-"`
	UUID         string    `gorm:"uniqueIndex;size:36;not null" json:"uuid" bson:"uuid"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email" bson:"email"`
	DisplayName  string    `json:"display_name" bson:"display_name"`
	PasswordHash string    `gorm:"not null" json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"-" bson:"updated_at"`
}

// NormalizeEmail lower-cases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
