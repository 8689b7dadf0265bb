package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant     string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL      time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	DashboardCacheTTL time.Duration `mapstructure:"DASHBOARD_CACHE_TTL"`
	QRServiceURL      string        `mapstructure:"QR_SERVICE_URL"`
	QRImageSize       int           `mapstructure:"QR_IMAGE_SIZE"`
	UHIDPrefix        string        `mapstructure:"UHID_PREFIX"`
	HospitalName      string        `mapstructure:"HOSPITAL_NAME"`
	PharmacyGSTIN     string        `mapstructure:"PHARMACY_GSTIN"`
	PharmacyUPIID     string        `mapstructure:"PHARMACY_UPI_ID"`
	SMTPHost          string        `mapstructure:"SMTP_HOST"`
	SMTPPort          int           `mapstructure:"SMTP_PORT"`
	SMTPUser          string        `mapstructure:"SMTP_USER"`
	SMTPPassword      string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom          string        `mapstructure:"SMTP_FROM"`
	UploadMaxBytes    int64         `mapstructure:"UPLOAD_MAX_BYTES"`
	ExpiryWarningDays int           `mapstructure:"EXPIRY_WARNING_DAYS"`
	LowStockThreshold int           `mapstructure:"LOW_STOCK_THRESHOLD"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
	"AUTH_TOKEN_TTL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REDIS_URL",
	"DASHBOARD_CACHE_TTL", "QR_SERVICE_URL", "QR_IMAGE_SIZE", "UHID_PREFIX",
	"HOSPITAL_NAME", "PHARMACY_GSTIN", "PHARMACY_UPI_ID", "SMTP_HOST",
	"SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM", "UPLOAD_MAX_BYTES",
	"EXPIRY_WARNING_DAYS", "LOW_STOCK_THRESHOLD",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_ISSUER", "hms")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("DASHBOARD_CACHE_TTL", "30s")
	v.SetDefault("QR_SERVICE_URL", "https://api.qrserver.com/v1/create-qr-code/")
	v.SetDefault("QR_IMAGE_SIZE", 150)
	v.SetDefault("UHID_PREFIX", "UH")
	v.SetDefault("HOSPITAL_NAME", "City Hospital")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("UPLOAD_MAX_BYTES", 10<<20)
	v.SetDefault("EXPIRY_WARNING_DAYS", 30)
	v.SetDefault("LOW_STOCK_THRESHOLD", 10)

	// Unmarshal only sees env vars that were bound explicitly
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in development mode, every request is treated as admin")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MailEnabled reports whether enough SMTP settings exist to send stock alerts.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key of at least 32 bytes is required for staff tokens.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ExpiryWarningDays < 0 {
		return fmt.Errorf("EXPIRY_WARNING_DAYS must not be negative")
	}
	return nil
}
