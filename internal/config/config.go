package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/andy/tally/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. TALLY_DATABASE_PATH.
const EnvPrefix = "TALLY"

type Config struct {
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Invoice  InvoiceConfig  `yaml:"invoice" mapstructure:"invoice"`

	// User info printed on invoices
	User UserConfig `yaml:"user" mapstructure:"user"`

	Log LogConfig `yaml:"log" mapstructure:"log"`
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path" mapstructure:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// InvoiceConfig seeds the settings row on first run. Afterwards the stored
// settings win; change them with `tally settings set`.
type InvoiceConfig struct {
	NumberPrefix   string `yaml:"number_prefix" mapstructure:"number_prefix"`
	DefaultDueDays int    `yaml:"default_due_days" mapstructure:"default_due_days"`
	DefaultTaxRate string `yaml:"default_tax_rate" mapstructure:"default_tax_rate"` // percent, e.g. "8.25"
	Currency       string `yaml:"currency" mapstructure:"currency"`
}

type UserConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Email   string `yaml:"email" mapstructure:"email"`
	Address string `yaml:"address" mapstructure:"address"`
	Phone   string `yaml:"phone" mapstructure:"phone"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

type TUIConfig struct {
	ResyncInterval time.Duration `yaml:"resync_interval" mapstructure:"resync_interval"`
}

func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tally")
	}
	return filepath.Join(homeDir, ".config", "tally")
}

// DefaultConfigPath returns $TALLY_CONFIG or ~/.config/tally/config.yaml
func DefaultConfigPath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        filepath.Join(configDir(), "tally.db"),
			BusyTimeout: 5 * time.Second,
		},
		Invoice: InvoiceConfig{
			NumberPrefix:   "INV-",
			DefaultDueDays: 30,
			DefaultTaxRate: "0",
			Currency:       "USD",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		TUI: TUIConfig{
			ResyncInterval: 30 * time.Second,
		},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("invoice.number_prefix", d.Invoice.NumberPrefix)
	v.SetDefault("invoice.default_due_days", d.Invoice.DefaultDueDays)
	v.SetDefault("invoice.default_tax_rate", d.Invoice.DefaultTaxRate)
	v.SetDefault("invoice.currency", d.Invoice.Currency)
	v.SetDefault("user.name", d.User.Name)
	v.SetDefault("user.email", d.User.Email)
	v.SetDefault("user.address", d.User.Address)
	v.SetDefault("user.phone", d.User.Phone)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tui.resync_interval", d.TUI.ResyncInterval)
}

// Load reads config from path, falling back to defaults when the file does not
// exist. Any key can be overridden by a TALLY_ environment variable.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

// Validate checks the values that would otherwise fail later and far from the file.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if _, err := c.SettingsDefaults(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates the database directory
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(filepath.Dir(c.Database.Path), 0700)
}

// SettingsDefaults converts the invoice section into the values used to seed
// the settings row.
func (c *Config) SettingsDefaults() (domain.Settings, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Invoice.DefaultTaxRate))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("invoice.default_tax_rate %q is not a number", c.Invoice.DefaultTaxRate)
	}
	s := domain.Settings{
		InvoicePrefix:     c.Invoice.NumberPrefix,
		NextInvoiceNumber: 1,
		Currency:          strings.ToUpper(c.Invoice.Currency),
		PaymentTermsDays:  c.Invoice.DefaultDueDays,
		DefaultTaxRate:    rate,
	}
	if err := s.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// SlogLevel parses log.level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q is not a level", l.Level)
	}
	return level, nil
}
