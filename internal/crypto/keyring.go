package crypto

import "errors"

// Keyring stores the database encryption key outside the database.
type Keyring interface {
	// GetKey returns the key, or ErrNoKey when none has been stored yet.
	GetKey() (string, error)
	SetKey(password string) error
	// Source names where GetKey looks, for diagnostics.
	Source() string
}

const (
	ServiceName = "tally"
	KeyName     = "db-encryption-key"

	// EnvKey overrides the stored key and replaces it where no keyring exists.
	EnvKey = "TALLY_DB_KEY"
)

var ErrNoKey = errors.New("no database encryption key")

// NewKeyring returns the best available keyring implementation
func NewKeyring() Keyring {
	return newPlatformKeyring()
}
