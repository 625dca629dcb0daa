//go:build darwin

package crypto

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

type keychain struct{}

func newPlatformKeyring() Keyring {
	return keychain{}
}

// GetKey prefers TALLY_DB_KEY so scripted runs need no login session, then
// reads the macOS Keychain.
func (keychain) GetKey() (string, error) {
	if key := envKey(); key != "" {
		return key, nil
	}
	key, err := keyring.Get(ServiceName, KeyName)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", ErrNoKey
	case err != nil:
		return "", fmt.Errorf("failed to read keychain: %w", err)
	case key == "":
		return "", ErrNoKey
	}
	return key, nil
}

func (keychain) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}
	if err := keyring.Set(ServiceName, KeyName, password); err != nil {
		return fmt.Errorf("failed to store key in keychain: %w", err)
	}
	return nil
}

func (keychain) Source() string {
	if envKey() != "" {
		return EnvKey
	}
	return "keychain"
}
