package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/andy/tally/internal/db"
	"github.com/andy/tally/internal/domain"
)

// SettingsRepo is a SQLite implementation of SettingsRepository
type SettingsRepo struct {
	db db.Querier
}

// NewSettingsRepo creates a new SettingsRepo
func NewSettingsRepo(q db.Querier) *SettingsRepo {
	return &SettingsRepo{db: q}
}

// Ensure seeds the singleton row; an existing row is left untouched.
func (r *SettingsRepo) Ensure(ctx context.Context, defaults domain.Settings) error {
	if err := defaults.Validate(); err != nil {
		return err
	}
	query := `
		INSERT OR IGNORE INTO user_settings (
			id, invoice_prefix, next_invoice_number, currency, payment_terms_days, default_tax_rate, updated_at
		)
		VALUES (1, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		defaults.InvoicePrefix,
		defaults.NextInvoiceNumber,
		defaults.Currency,
		defaults.PaymentTermsDays,
		defaults.DefaultTaxRate,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// Get returns the settings row
func (r *SettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	query := `
		SELECT invoice_prefix, next_invoice_number, currency, payment_terms_days, default_tax_rate
		FROM user_settings
		WHERE id = 1
	`
	s := &domain.Settings{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.InvoicePrefix,
		&s.NextInvoiceNumber,
		&s.Currency,
		&s.PaymentTermsDays,
		&s.DefaultTaxRate,
	)
	if err != nil {
		return nil, notFound(err, domain.NotFoundf("settings have not been initialized"), "get settings")
	}
	return s, nil
}

// Update rewrites the settings row
func (r *SettingsRepo) Update(ctx context.Context, s *domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	query := `
		UPDATE user_settings
		SET invoice_prefix = ?, next_invoice_number = ?, currency = ?,
		    payment_terms_days = ?, default_tax_rate = ?, updated_at = ?
		WHERE id = 1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.InvoicePrefix,
		s.NextInvoiceNumber,
		s.Currency,
		s.PaymentTermsDays,
		s.DefaultTaxRate,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return expectOne(result, domain.NotFoundf("settings have not been initialized"))
}

// AllocateInvoiceNumber increments the counter and reads it back. Called
// inside an immediate transaction the pair is atomic: the writer lock is held
// from BEGIN, so no other connection can interleave between the two statements.
func (r *SettingsRepo) AllocateInvoiceNumber(ctx context.Context) (string, int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_settings SET next_invoice_number = next_invoice_number + 1 WHERE id = 1`)
	if err != nil {
		return "", 0, fmt.Errorf("failed to increment invoice number: %w", err)
	}
	if err := expectOne(result, domain.NotFoundf("settings have not been initialized")); err != nil {
		return "", 0, err
	}

	var prefix string
	var next int64
	err = r.db.QueryRowContext(ctx,
		`SELECT invoice_prefix, next_invoice_number FROM user_settings WHERE id = 1`).Scan(&prefix, &next)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read invoice number: %w", err)
	}
	return prefix, next - 1, nil
}
