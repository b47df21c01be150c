package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CredentialProfile stores the bearer credential used for the push channel and REST calls
type CredentialProfile struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"unique;not null" json:"name"`
	TokenEnc  string    `gorm:"not null;column:token_enc" json:"-"` // Encrypted, never expose in JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (cp *CredentialProfile) BeforeCreate(tx *gorm.DB) error {
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (CredentialProfile) TableName() string {
	return "credential_profiles"
}
