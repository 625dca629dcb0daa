package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"
)

// DefaultBusyTimeout bounds how long a writer waits for the database lock.
const DefaultBusyTimeout = 5 * time.Second

// ErrInvalidKey is returned for an empty key or one the driver cannot quote.
var ErrInvalidKey = errors.New(`database key must be non-empty and must not contain '"'`)

// ValidateKey checks that key can be passed to SQLCipher as a passphrase.
// The driver interpolates it into PRAGMA key = "...", so double quotes are
// rejected.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsRune(key, '"') {
		return ErrInvalidKey
	}
	return nil
}

type DB struct {
	*sql.DB
}

// Options tune the connection. The zero value is usable.
type Options struct {
	BusyTimeout time.Duration
}

// Open opens an encrypted SQLite database with the given password.
// dbPath is the full path to the database file.
//
// Every transaction is started with BEGIN IMMEDIATE, so a read-then-write
// inside one transaction holds the single writer lock from the start.
func Open(dbPath, password string, opts Options) (*DB, error) {
	if err := ValidateKey(password); err != nil {
		return nil, err
	}

	// Create parent directories if they don't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}

	q := url.Values{}
	q.Set("_pragma_key", password)
	q.Set("_foreign_keys", "1")
	q.Set("_busy_timeout", fmt.Sprint(busy.Milliseconds()))
	q.Set("_txlock", "immediate")
	connStr := fmt.Sprintf("%s?%s", dbPath, q.Encode())

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent performance. This is also the
	// first read of the file, so a wrong key fails here.
	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Ping to verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
