// Package config loads runtime configuration from .env, an optional YAML file
// and RECON_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "RECON"

// Extraction backends.
const (
	BackendOpenAI     = "openai"
	BackendDocumentAI = "documentai"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    logger.LogConfig `mapstructure:"logging"`
	Mail       MailConfig       `mapstructure:"mail"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Matching   MatchingConfig   `mapstructure:"matching"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type ServerConfig struct {
	Port           string `mapstructure:"port"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	JWTSecret      string `mapstructure:"jwt_secret"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
}

// MailConfig configures the Gmail collaborator. Either CredentialsFile (an
// installed-app OAuth client) with TokenFile, or ServiceAccountFile, must be set
// for mailbox access.
type MailConfig struct {
	CredentialsFile    string `mapstructure:"credentials_file"`
	TokenFile          string `mapstructure:"token_file"`
	ServiceAccountFile string `mapstructure:"service_account_file"`
	User               string `mapstructure:"user"`
	Label              string `mapstructure:"label"`
	Query              string `mapstructure:"query"`
	MaxResults         int64  `mapstructure:"max_results"`
}

type ExtractionConfig struct {
	Backend         string        `mapstructure:"backend"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	OpenAIModel     string        `mapstructure:"openai_model"`
	ProjectID       string        `mapstructure:"project_id"`
	Location        string        `mapstructure:"location"`
	ProcessorID     string        `mapstructure:"processor_id"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
}

type MatchingConfig struct {
	Tolerance       string            `mapstructure:"tolerance"`
	GapCeilingRatio string            `mapstructure:"gap_ceiling_ratio"`
	ChargeRules     []core.ChargeRule `mapstructure:"charge_rules"`
	AccountCodes    map[string]string `mapstructure:"account_codes"`
}

func setDefaults(v *viper.Viper) {
	log := logger.DefaultConfig()
	v.SetDefault("logging.level", log.Level)
	v.SetDefault("logging.format", log.Format)
	v.SetDefault("logging.time_format", log.TimeFormat)
	v.SetDefault("logging.output", log.Output)

	v.SetDefault("database.url", "")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("mail.credentials_file", "credentials.json")
	v.SetDefault("mail.token_file", "token.json")
	v.SetDefault("mail.service_account_file", "")
	v.SetDefault("mail.user", "me")
	v.SetDefault("mail.label", "")
	v.SetDefault("mail.query", "has:attachment filename:pdf")
	v.SetDefault("mail.max_results", 50)

	v.SetDefault("extraction.backend", BackendOpenAI)
	v.SetDefault("extraction.openai_api_key", "")
	v.SetDefault("extraction.openai_model", "gpt-4o-mini")
	v.SetDefault("extraction.project_id", "")
	v.SetDefault("extraction.location", "us")
	v.SetDefault("extraction.processor_id", "")
	v.SetDefault("extraction.credentials_file", "")
	v.SetDefault("extraction.cache_ttl", 24*time.Hour)
	v.SetDefault("extraction.rate_per_second", 2.0)
	v.SetDefault("extraction.burst", 1)

	v.SetDefault("matching.tolerance", core.DefaultTolerance.String())
	v.SetDefault("matching.gap_ceiling_ratio", "1.0")
	v.SetDefault("matching.charge_rules", core.DefaultChargeRules())
	// Nested maps must be map[string]any for viper to merge them key by key.
	codes := map[string]any{}
	for cat, code := range core.DefaultAccountMap() {
		codes[strings.ToLower(string(cat))] = code
	}
	v.SetDefault("matching.account_codes", codes)
}

// Load reads configuration. An empty path searches ./config.yaml and
// $HOME/.config/invoice-reconciler/config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/invoice-reconciler")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by the rest of the toolchain.
	_ = v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("extraction.openai_api_key", envPrefix+"_EXTRACTION_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("server.jwt_secret", envPrefix+"_SERVER_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "SERVER_PORT")
	_ = v.BindEnv("server.allowed_origins", envPrefix+"_SERVER_ALLOWED_ORIGINS", "ALLOWED_ORIGINS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	if _, err := c.Engine(); err != nil {
		return err
	}
	switch c.Extraction.Backend {
	case BackendOpenAI, BackendDocumentAI:
	default:
		return fmt.Errorf("unknown extraction backend %q (want %s or %s)", c.Extraction.Backend, BackendOpenAI, BackendDocumentAI)
	}
	if c.Extraction.RatePerSecond < 0 {
		return fmt.Errorf("extraction.rate_per_second must be >= 0")
	}
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	return nil
}

// Engine converts the matching section into the engine configuration.
func (c *Config) Engine() (core.EngineConfig, error) {
	cfg := core.DefaultEngineConfig()

	tol, err := decimal.NewFromString(c.Matching.Tolerance)
	if err != nil {
		return cfg, fmt.Errorf("invalid matching.tolerance %q: %w", c.Matching.Tolerance, err)
	}
	if tol.IsNegative() {
		return cfg, fmt.Errorf("matching.tolerance must be >= 0, got %s", tol)
	}
	cfg.Tolerance = tol

	ratio, err := decimal.NewFromString(c.Matching.GapCeilingRatio)
	if err != nil {
		return cfg, fmt.Errorf("invalid matching.gap_ceiling_ratio %q: %w", c.Matching.GapCeilingRatio, err)
	}
	if !ratio.IsPositive() {
		return cfg, fmt.Errorf("matching.gap_ceiling_ratio must be > 0, got %s", ratio)
	}
	cfg.GapCeilingRatio = ratio

	if len(c.Matching.ChargeRules) > 0 {
		rules := make([]core.ChargeRule, 0, len(c.Matching.ChargeRules))
		for i, r := range c.Matching.ChargeRules {
			cat, err := core.ParseChargeCategory(string(r.Category))
			if err != nil {
				return cfg, fmt.Errorf("matching.charge_rules[%d]: %w", i, err)
			}
			rules = append(rules, core.ChargeRule{Category: cat, Keywords: r.Keywords})
		}
		cfg.ChargeRules = rules
	}

	// Keys arrive lower-cased from viper.
	accounts := core.AccountMap{}
	for name, code := range c.Matching.AccountCodes {
		cat, err := core.ParseChargeCategory(name)
		if err != nil {
			return cfg, fmt.Errorf("matching.account_codes: %w", err)
		}
		accounts[cat] = strings.TrimSpace(code)
	}
	cfg.AccountCodes = accounts
	return cfg, nil
}
