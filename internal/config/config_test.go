package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: /tmp/tally-test.db
  busy_timeout: 2s
invoice:
  number_prefix: "ACME-"
  default_tax_rate: "8.25"
  currency: eur
log:
  level: debug
`), 0644))

	t.Setenv("TALLY_LOG_FORMAT", "json")
	t.Setenv("TALLY_INVOICE_DEFAULT_DUE_DAYS", "14")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/tally-test.db", cfg.Database.Path)
	require.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, 14, cfg.Invoice.DefaultDueDays)
	require.Equal(t, 30*time.Second, cfg.TUI.ResyncInterval)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	s, err := cfg.SettingsDefaults()
	require.NoError(t, err)
	require.Equal(t, "ACME-", s.InvoicePrefix)
	require.Equal(t, "EUR", s.Currency)
	require.Equal(t, 14, s.PaymentTermsDays)
	require.Equal(t, "8.25", s.DefaultTaxRate.String())
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	for name, body := range map[string]string{
		"tax rate":   "invoice:\n  default_tax_rate: lots\n",
		"tax range":  "invoice:\n  default_tax_rate: \"150\"\n",
		"log level":  "log:\n  level: chatty\n",
		"log format": "log:\n  format: xml\n",
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.User.Name = "Ada"
	cfg.Database.BusyTimeout = 750 * time.Millisecond

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
