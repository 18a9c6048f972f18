package bot

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "kryten"
	keyringAPIKey  = "anthropic_api_key"
)

// StoreKeyringAPIKey saves the model API key in the OS keyring.
func StoreKeyringAPIKey(key string) error {
	if err := keyring.Set(keyringService, keyringAPIKey, key); err != nil {
		return fmt.Errorf("store API key in keyring: %w", err)
	}
	return nil
}

// GetKeyringAPIKey reads the model API key from the OS keyring.
func GetKeyringAPIKey() (string, error) {
	key, err := keyring.Get(keyringService, keyringAPIKey)
	if err != nil {
		return "", fmt.Errorf("read API key from keyring: %w", err)
	}
	return key, nil
}

// DeleteKeyringAPIKey removes the model API key from the OS keyring.
func DeleteKeyringAPIKey() error {
	if err := keyring.Delete(keyringService, keyringAPIKey); err != nil {
		return fmt.Errorf("delete API key from keyring: %w", err)
	}
	return nil
}
