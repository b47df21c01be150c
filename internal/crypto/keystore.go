package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	keystoreService = "coursedesk"
	keystoreUser    = "credential-key"
)

// LoadKey returns the credential encryption key.
// Priority:
// 1. configured value (ENCRYPTION_KEY, for development/testing)
// 2. system keychain
// 3. a freshly generated key, stored in the keychain
func LoadKey(configured string, logger *zap.Logger) ([]byte, error) {
	if configured != "" {
		return KeyFromString(configured), nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stored, err := keyring.Get(keystoreService, keystoreUser)
	if err == nil && stored != "" {
		key, decodeErr := base64.StdEncoding.DecodeString(stored)
		if decodeErr == nil && len(key) == KeySize {
			return key, nil
		}
		logger.Warn("keychain entry is not a valid key, regenerating")
	} else if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logger.Warn("keychain lookup failed", zap.Error(err))
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	if err := keyring.Set(keystoreService, keystoreUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		// Headless Linux often has no secret service; stored credentials
		// will not decrypt after restart and must be saved again.
		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
		logger.Warn("failed to store key in keychain, key is ephemeral", zap.Error(err))
	}

	return key, nil
}

// DeleteKey removes the encryption key from the keychain
func DeleteKey() error {
	return keyring.Delete(keystoreService, keystoreUser)
}
