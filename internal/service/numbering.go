package service

import (
	"context"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

// allocateInvoiceNumber mints the next invoice number. It must run inside the
// transaction that creates the invoice so a rollback also returns the number.
func allocateInvoiceNumber(ctx context.Context, settings repository.SettingsRepository) (string, error) {
	prefix, n, err := settings.AllocateInvoiceNumber(ctx)
	if err != nil {
		return "", err
	}
	return domain.FormatInvoiceNumber(prefix, n), nil
}
