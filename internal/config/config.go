package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Vocabulary sources.
const (
	SourceBuiltin  = "builtin"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogFile          string        `mapstructure:"LOG_FILE"`
	LogMaxSizeMB     int           `mapstructure:"LOG_MAX_SIZE_MB"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	HSTS             bool          `mapstructure:"HSTS"`
	AuthJWTSecret    string        `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	VocabularySource string        `mapstructure:"VOCABULARY_SOURCE"`
	VocabularyFile   string        `mapstructure:"VOCABULARY_FILE"`
	VocabularyWatch  bool          `mapstructure:"VOCABULARY_WATCH"`
	FHIRBaseURL      string        `mapstructure:"FHIR_BASE_URL"`
	CodePreference   string        `mapstructure:"CODE_PREFERENCE"`
	QualifyCodes     bool          `mapstructure:"QUALIFY_CODES"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	MetricsEnabled   bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"REQUEST_TIMEOUT", "HSTS",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"VOCABULARY_SOURCE", "VOCABULARY_FILE", "VOCABULARY_WATCH",
	"FHIR_BASE_URL", "CODE_PREFERENCE", "QUALIFY_CODES", "TIMEZONE",
	"METRICS_ENABLED",
}

// Load reads configuration from the environment and an optional .env file.
// It does not validate; call Validate before using the result.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("HSTS", false)
	v.SetDefault("AUTH_AUDIENCE", "nlq")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("VOCABULARY_SOURCE", SourceBuiltin)
	v.SetDefault("VOCABULARY_WATCH", false)
	v.SetDefault("CODE_PREFERENCE", "primary")
	v.SetDefault("QUALIFY_CODES", true)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.VocabularySource = strings.ToLower(strings.TrimSpace(cfg.VocabularySource))
	cfg.CodePreference = strings.ToLower(strings.TrimSpace(cfg.CodePreference))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
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

// AuthEnabled reports whether bearer tokens are verified. Development without
// a secret runs with the dev auth middleware instead.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}

// Location resolves TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.VocabularySource {
	case SourceBuiltin:
	case SourceFile:
		if c.VocabularyFile == "" {
			return fmt.Errorf("VOCABULARY_FILE is required when VOCABULARY_SOURCE is %q", SourceFile)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when VOCABULARY_SOURCE is %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("VOCABULARY_SOURCE must be %q, %q, or %q, got %q",
			SourceBuiltin, SourceFile, SourcePostgres, c.VocabularySource)
	}

	if c.VocabularyWatch && c.VocabularySource != SourceFile {
		return fmt.Errorf("VOCABULARY_WATCH requires VOCABULARY_SOURCE=%q", SourceFile)
	}

	if c.CodePreference != "primary" && c.CodePreference != "secondary" {
		return fmt.Errorf("CODE_PREFERENCE must be \"primary\" or \"secondary\", got %q", c.CodePreference)
	}

	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required outside development (ENV=%q)", c.Env)
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes, got %d", len(c.AuthJWTSecret))
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
