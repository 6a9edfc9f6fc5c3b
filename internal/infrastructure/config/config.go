// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} expansion
//  2. Environment variables (fallback), optionally seeded from a .env file
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	table := cfg.Tables.Processed
//	account := cfg.Snowflake.Account
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Snowflake      SnowflakeConfig      `yaml:"snowflake"`
	OData          ODataConfig          `yaml:"odata"`
	Tables         TablesConfig         `yaml:"tables"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Downloads      DownloadsConfig      `yaml:"downloads"`
	Audit          AuditConfig          `yaml:"audit"`
	API            APIConfig            `yaml:"api"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// SnowflakeConfig holds warehouse connection settings
type SnowflakeConfig struct {
	Account   string `yaml:"account" validate:"required"`
	Username  string `yaml:"username" validate:"required"`
	Password  string `yaml:"password" validate:"required"`
	Warehouse string `yaml:"warehouse" validate:"required"`
	Database  string `yaml:"database" validate:"required"`
	Schema    string `yaml:"schema" validate:"required"`
	Role      string `yaml:"role"`
}

// ODataConfig holds ERP OData API settings
type ODataConfig struct {
	ClientID       string  `yaml:"client_id" validate:"required"`
	ClientSecret   string  `yaml:"client_secret" validate:"required"`
	TokenURL       string  `yaml:"token_url" validate:"required,url"`
	Scope          string  `yaml:"scope"`
	BaseURL        string  `yaml:"base_url" validate:"required,url"`
	EntityName     string  `yaml:"entity_name"`
	FilterField    string  `yaml:"filter_field"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// TablesConfig holds fully qualified warehouse table names
type TablesConfig struct {
	Processed string `yaml:"processed"`
	Base      string `yaml:"base"`
	View      string `yaml:"view"`
	AuditLog  string `yaml:"audit_log"`
}

// ReconciliationConfig holds comparison and correction defaults
type ReconciliationConfig struct {
	DefaultDataAreaID string  `yaml:"default_data_area_id"`
	LedgerAccount     int     `yaml:"ledger_account"`
	MismatchTolerance float64 `yaml:"mismatch_tolerance"`
}

// DownloadsConfig holds per-source row caps for line downloads
type DownloadsConfig struct {
	Vista     LimitConfig `yaml:"vista"`
	Processed LimitConfig `yaml:"processed"`
}

// LimitConfig is a default and a ceiling
type LimitConfig struct {
	Default int `yaml:"default"`
	Max     int `yaml:"max"`
}

// AuditConfig holds query-log settings
type AuditConfig struct {
	Backend         string `yaml:"backend"` // sqlite | warehouse
	DatabasePath    string `yaml:"database_path"`
	DefaultExecutor string `yaml:"default_executor"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Audit backends.
const (
	AuditBackendSQLite    = "sqlite"
	AuditBackendWarehouse = "warehouse"
)

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${SNOWFLAKE_PASSWORD})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Snowflake: SnowflakeConfig{
			Account:   os.Getenv("SNOWFLAKE_ACCOUNT"),
			Username:  os.Getenv("SNOWFLAKE_USERNAME"),
			Password:  os.Getenv("SNOWFLAKE_PASSWORD"),
			Warehouse: os.Getenv("SNOWFLAKE_WAREHOUSE"),
			Database:  os.Getenv("SNOWFLAKE_DATABASE"),
			Schema:    os.Getenv("SNOWFLAKE_SCHEMA"),
			Role:      os.Getenv("SNOWFLAKE_ROLE"),
		},
		OData: ODataConfig{
			ClientID:       os.Getenv("CLIENT_ID"),
			ClientSecret:   os.Getenv("CLIENT_SECRET"),
			TokenURL:       os.Getenv("TOKEN_URL"),
			Scope:          os.Getenv("SCOPE_URL"),
			BaseURL:        os.Getenv("BASE_URL"),
			EntityName:     os.Getenv("ENTITY_NAME"),
			FilterField:    os.Getenv("FILTER_FIELD"),
			RateLimit:      getEnvFloat("ODATA_RATE_LIMIT", 0),
			TimeoutSeconds: getEnvInt("ODATA_TIMEOUT_SECONDS", 0),
		},
		Tables: TablesConfig{
			Processed: os.Getenv("SNOWFLAKE_PROCESSED_TABLE"),
			Base:      os.Getenv("SNOWFLAKE_BASE_TABLE"),
			View:      os.Getenv("SNOWFLAKE_VIEW_TABLE"),
			AuditLog:  os.Getenv("SNOWFLAKE_LOG_TABLE"),
		},
		Reconciliation: ReconciliationConfig{
			DefaultDataAreaID: os.Getenv("DATAAREAID"),
			LedgerAccount:     getEnvInt("LEDGER_ACCOUNT", 0),
			MismatchTolerance: getEnvFloat("MISMATCH_TOLERANCE", 0),
		},
		Downloads: DownloadsConfig{
			Vista: LimitConfig{
				Default: getEnvInt("VISTA_DEFAULT_LIMIT", 0),
				Max:     getEnvInt("VISTA_MAX_LIMIT", 0),
			},
			Processed: LimitConfig{
				Default: getEnvInt("PROCESSED_DEFAULT_LIMIT", 0),
				Max:     getEnvInt("PROCESSED_MAX_LIMIT", 0),
			},
		},
		Audit: AuditConfig{
			Backend:         os.Getenv("AUDIT_BACKEND"),
			DatabasePath:    os.Getenv("AUDIT_DB_PATH"),
			DefaultExecutor: os.Getenv("LOG_EXECUTOR"),
		},
		API: APIConfig{
			Port:           getEnvInt("PORT", 0),
			AllowedOrigins: splitEnv("ALLOWED_ORIGINS"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment
// variables. A .env file in the working directory is loaded first when present;
// variables already set in the process win.
func LoadOrEnvWithPath(path string) *Config {
	_ = godotenv.Load()

	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// ApplyDefaults fills every unset field with its production default
func (c *Config) ApplyDefaults() {
	if c.OData.EntityName == "" {
		c.OData.EntityName = "PdSalesVSCostProcesseds"
	}
	if c.OData.FilterField == "" {
		c.OData.FilterField = "SalesId"
	}
	if c.OData.TimeoutSeconds <= 0 {
		c.OData.TimeoutSeconds = 30
	}
	if c.Tables.Processed == "" {
		c.Tables.Processed = "CORE.ERP_PROCESSED_SALESLINE"
	}
	if c.Tables.Base == "" {
		c.Tables.Base = "CORE.ERP_ACCOUNTING_TRANSACTION"
	}
	if c.Tables.View == "" {
		c.Tables.View = "CORE.VW_VENTA_COSTO_LINEAS"
	}
	if c.Tables.AuditLog == "" {
		c.Tables.AuditLog = "ZLOGS_QUERYS"
	}
	if c.Reconciliation.LedgerAccount <= 0 {
		c.Reconciliation.LedgerAccount = 400000
	}
	if c.Reconciliation.MismatchTolerance <= 0 {
		c.Reconciliation.MismatchTolerance = 0.005
	}
	applyLimitDefaults(&c.Downloads.Vista)
	applyLimitDefaults(&c.Downloads.Processed)
	if c.Audit.Backend == "" {
		c.Audit.Backend = AuditBackendSQLite
	}
	if c.Audit.DatabasePath == "" {
		c.Audit.DatabasePath = "reconciler_audit.db"
	}
	if c.Audit.DefaultExecutor == "" {
		c.Audit.DefaultExecutor = "ui"
	}
	if c.API.Port == 0 {
		c.API.Port = 8085
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

func applyLimitDefaults(l *LimitConfig) {
	if l.Max <= 0 {
		l.Max = 500000
	}
	if l.Default <= 0 || l.Default > l.Max {
		l.Default = min(50000, l.Max)
	}
}

var validate = validator.New()

// Validate checks the Snowflake credentials needed to open a connection
func (c SnowflakeConfig) Validate() error {
	return validationError("snowflake", validate.Struct(c))
}

// Validate checks the OAuth and endpoint settings needed to call the ERP
func (c ODataConfig) Validate() error {
	return validationError("odata", validate.Struct(c))
}

// Validate checks the audit backend selection
func (c AuditConfig) Validate() error {
	switch c.Backend {
	case AuditBackendSQLite, AuditBackendWarehouse:
		return nil
	default:
		return fmt.Errorf("audit: unknown backend %q", c.Backend)
	}
}

// validationError flattens validator output into one readable error.
func validationError(section string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%s: %w", section, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%s: invalid configuration: %s", section, strings.Join(fields, ", "))
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return result
		}
	}
	return fallback
}

func splitEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
