package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "vkharvest"

// KeyringSource reads tokens stored in the system keychain under the
// vkharvest service
type KeyringSource struct {
	service string
}

// NewKeyringSource creates a keychain-backed source
func NewKeyringSource() *KeyringSource {
	return &KeyringSource{service: keyringService}
}

// Lookup returns the token stored under name
func (k *KeyringSource) Lookup(name string) (string, error) {
	tok, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("keyring %s: %w", name, ErrCredentialNotFound)
		}
		return "", fmt.Errorf("keyring %s: %w", name, err)
	}
	return tok, nil
}
