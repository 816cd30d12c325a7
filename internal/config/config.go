// Package config loads runtime settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"strings"
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	Port int    `envconfig:"PORT" default:"8080"`
	Env  string `envconfig:"APP_ENV" default:"local"`

	DBEngine    string         `envconfig:"DB_ENGINE" default:"sqlite"`
	SQLitePath  string         `envconfig:"SQLITE_PATH" default:"licenses.db"`
	DatabaseURL string         `envconfig:"DATABASE_URL"`
	Postgres    PostgresConfig `envconfig:"BLUEPRINT_DB"`

	JWTSecret         string        `envconfig:"JWT_SECRET"`
	JWTExpiry         time.Duration `envconfig:"JWT_EXPIRY" default:"30m"`
	AdminUsername     string        `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`

	LicenseTiers    []string           `envconfig:"LICENSE_TIERS" default:"trader,pro,enterprise"`
	TierPrices      map[string]float64 `envconfig:"TIER_PRICES" default:"trader:180,pro:250,enterprise:800"`
	AddOnPrice      float64            `envconfig:"ADDON_PRICE" default:"150"`
	Currency        string             `envconfig:"CURRENCY" default:"EUR"`
	LicenseValidity time.Duration      `envconfig:"LICENSE_VALIDITY" default:"8760h"`
	ProductName     string             `envconfig:"PRODUCT_NAME" default:"AlekosTrader"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	PayPal PayPalConfig `envconfig:"PAYPAL"`
	Email  EmailConfig  `envconfig:"EMAIL"`

	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`
	ValidateRate    float64       `envconfig:"VALIDATE_RATE" default:"2"`
	ValidateBurst   int           `envconfig:"VALIDATE_BURST" default:"10"`

	ReconcileAfter time.Duration `envconfig:"RECONCILE_AFTER" default:"15m"`
	ReconcileBatch int           `envconfig:"RECONCILE_BATCH" default:"50"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile   string `envconfig:"LOG_FILE"`
	LogMaxMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	LogFiles  int    `envconfig:"LOG_MAX_FILES" default:"3"`
}

// PostgresConfig keeps the BLUEPRINT_DB_* variable names used by existing deployments.
type PostgresConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"5432"`
	Database string `envconfig:"DATABASE" default:"licenses"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	Schema   string `envconfig:"SCHEMA" default:"public"`
}

type PayPalConfig struct {
	ClientID     string `envconfig:"CLIENT_ID"`
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	Mode         string `envconfig:"MODE" default:"sandbox"`
	BaseURL      string `envconfig:"BASE_URL"`
	ReturnURL    string `envconfig:"RETURN_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL    string `envconfig:"CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
}

// Enabled reports whether live checkout is configured. Without it the
// server issues licenses in offline test mode.
func (p PayPalConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

func (p PayPalConfig) APIBase() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	if p.Mode == "live" {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

type EmailConfig struct {
	Host string `envconfig:"HOST"`
	Port int    `envconfig:"PORT" default:"587"`
	User string `envconfig:"USER"`
	Pass string `envconfig:"PASS"`
	From string `envconfig:"FROM"`
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.From != ""
}

const minLiveSecretLength = 32

// Load reads .env when present and decodes the environment into a Config.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to load config from env")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBEngine {
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required for the sqlite engine")
		}
	case "postgres":
	default:
		return errors.Errorf("DB_ENGINE must be sqlite or postgres, got %q", c.DBEngine)
	}

	if _, err := c.Catalog(); err != nil {
		return err
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRY must be positive")
	}

	switch c.PayPal.Mode {
	case "sandbox":
	case "live":
		if len(c.JWTSecret) < minLiveSecretLength {
			return errors.Errorf("JWT_SECRET must be at least %d characters in live mode", minLiveSecretLength)
		}
	default:
		return errors.Errorf("PAYPAL_MODE must be sandbox or live, got %q", c.PayPal.Mode)
	}

	if c.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	if c.LicenseValidity < 0 {
		return errors.New("LICENSE_VALIDITY cannot be negative")
	}
	if c.ValidateRate <= 0 || c.ValidateBurst <= 0 {
		return errors.New("VALIDATE_RATE and VALIDATE_BURST must be positive")
	}
	return nil
}

// Catalog builds the tier price list from LICENSE_TIERS and TIER_PRICES.
func (c *Config) Catalog() (*domain.TierCatalog, error) {
	tiers := make([]string, 0, len(c.LicenseTiers))
	for _, t := range c.LicenseTiers {
		if t = strings.TrimSpace(t); t != "" {
			tiers = append(tiers, t)
		}
	}
	return domain.NewTierCatalog(tiers, c.TierPrices, c.AddOnPrice, c.Currency)
}
