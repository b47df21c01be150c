// Package credential persists the API credential and notices when it changes.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"coursedesk/internal/crypto"
	"coursedesk/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no credential is stored for a profile.
	ErrNotFound = errors.New("credential not found")
	// ErrEmptyToken is returned when saving a blank token.
	ErrEmptyToken = errors.New("token must not be empty")
)

// Store keeps encrypted credentials in the database, one per profile name.
type Store struct {
	db     *gorm.DB
	cipher *crypto.Cipher
}

// NewStore creates a credential store.
func NewStore(db *gorm.DB, cipher *crypto.Cipher) *Store {
	return &Store{db: db, cipher: cipher}
}

// Save encrypts token and stores it under name, replacing any previous value.
func (s *Store) Save(ctx context.Context, name, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	enc, err := s.cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	db := s.db.WithContext(ctx)
	var profile models.CredentialProfile
	err = db.Where("name = ?", name).First(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = models.CredentialProfile{Name: name, TokenEnc: enc}
		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to create credential: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if err := db.Model(&profile).Update("token_enc", enc).Error; err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}

// Token returns the decrypted token stored under name.
func (s *Store) Token(ctx context.Context, name string) (string, error) {
	var profile models.CredentialProfile
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	token, err := s.cipher.Decrypt(profile.TokenEnc)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return token, nil
}

// Delete removes the credential stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.CredentialProfile{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
