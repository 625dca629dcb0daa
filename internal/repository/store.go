package repository

import (
	"context"
	"database/sql"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Clients  ClientRepository
	Projects ProjectRepository
	Sessions SessionRepository
	Invoices InvoiceRepository
	Payments PaymentRepository
	Settings SettingsRepository
}

// Transactor hands out repositories, either standalone or bound to one
// transaction for the duration of fn.
type Transactor interface {
	Repos() *Repositories
	InTx(ctx context.Context, fn func(*Repositories) error) error
}

// Store is the SQLite-backed Transactor.
type Store struct {
	db    *db.DB
	repos *Repositories
}

// NewStore creates a Store over an open, migrated database
func NewStore(database *db.DB) *Store {
	return &Store{db: database, repos: newRepositories(database)}
}

// Repos returns repositories that run each statement in its own implicit transaction.
func (s *Store) Repos() *Repositories {
	return s.repos
}

// InTx runs fn in one immediate transaction. Any error from fn rolls back every write.
// Failing to take the write lock in time is reported as a conflict.
func (s *Store) InTx(ctx context.Context, fn func(*Repositories) error) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(newRepositories(tx))
	})
	if db.IsBusy(err) {
		return domain.Conflictf("database is busy, try again: %v", err)
	}
	return err
}

func newRepositories(q db.Querier) *Repositories {
	return &Repositories{
		Clients:  NewClientRepo(q),
		Projects: NewProjectRepo(q),
		Sessions: NewSessionRepo(q),
		Invoices: NewInvoiceRepo(q),
		Payments: NewPaymentRepo(q),
		Settings: NewSettingsRepo(q),
	}
}
