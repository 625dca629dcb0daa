package service

import (
	"context"
	"log/slog"

	"github.com/andy/tally/internal/domain"
	"github.com/andy/tally/internal/repository"
)

// SettingsService exposes invoice numbering and billing defaults
type SettingsService interface {
	Get(ctx context.Context) (*domain.Settings, error)
	// Update applies a patch; the invoice counter may only move forward
	Update(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error)
}

type settingsService struct {
	store  repository.Transactor
	logger *slog.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(store repository.Transactor, opts ...Option) SettingsService {
	o := buildOptions(opts)
	return &settingsService{store: store, logger: o.logger}
}

func (s *settingsService) Get(ctx context.Context) (*domain.Settings, error) {
	return s.store.Repos().Settings.Get(ctx)
}

func (s *settingsService) Update(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error) {
	var settings *domain.Settings
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		var err error
		if settings, err = r.Settings.Get(ctx); err != nil {
			return err
		}
		if err := patch.Apply(settings); err != nil {
			return err
		}
		return r.Settings.Update(ctx, settings)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "settings updated",
		slog.String("invoice_prefix", settings.InvoicePrefix),
		slog.Int64("next_invoice_number", settings.NextInvoiceNumber),
	)
	return settings, nil
}
