package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mastodon-to-sqlite"
	keyringUser    = "credentials"
)

// KeyringStore keeps credentials in the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Load reads the credentials from the keychain
func (k *KeyringStore) Load() (*Credentials, error) {
	data, err := keyring.Get(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Save stores the credentials in the keychain, replacing any previous value
func (k *KeyringStore) Save(creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := keyring.Set(keyringService, keyringUser, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Delete removes the credentials from the keychain
func (k *KeyringStore) Delete() error {
	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
