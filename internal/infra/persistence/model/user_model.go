package model

import (
	"time"

	"github.com/google/uuid"
)

// UserModel mirrors the 'users' table created by the embedded migrations.
// IDs are UUIDv7 generated by the application.
type UserModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex:users_username_key;not null"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex:users_email_key;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	Role         string    `gorm:"type:varchar(16);not null;default:user"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}
