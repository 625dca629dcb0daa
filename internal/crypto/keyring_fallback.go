//go:build !darwin

package crypto

import (
	"errors"
	"fmt"
)

type envKeyring struct{}

func newPlatformKeyring() Keyring {
	return envKeyring{}
}

func (envKeyring) GetKey() (string, error) {
	key := envKey()
	if key == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoKey, EnvKey)
	}
	return key, nil
}

// SetKey cannot persist anything; it tells the user what to export instead.
func (envKeyring) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}
	return fmt.Errorf("no keyring on this platform: export %s with your password before running tally", EnvKey)
}

func (envKeyring) Source() string { return EnvKey }
