// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	// DATABASE_SQL_PASSWORD overrides database.sql.password
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("reasoning.learn", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		} else if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}

	if cfg.Database.SQL.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.SQL.User = val
		}
	}
	if cfg.Database.SQL.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.SQL.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "querybot"
	}

	// Database defaults
	sql := &cfg.Database.SQL
	if sql.Driver == "" {
		sql.Driver = DriverSQLite
	}
	if sql.Driver == DriverSQLite && sql.Path == "" && sql.DSN == "" {
		sql.Path = "querybot.db"
	}
	if sql.MaxConnections == 0 {
		sql.MaxConnections = 25
	}
	if sql.MaxIdle == 0 {
		sql.MaxIdle = 5
	}
	if sql.SSLMode == "" {
		sql.SSLMode = "disable"
	}
	if sql.QueryTimeout == 0 {
		sql.QueryTimeout = 30000
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL != "" {
		cfg.Database.Elasticsearch.Addresses = []string{cfg.Database.Elasticsearch.URL}
	}

	// LLM defaults
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "genai"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 1
	}

	// Reasoning defaults
	if cfg.Reasoning.MaxIterations == 0 {
		cfg.Reasoning.MaxIterations = 10
	}
	if cfg.Reasoning.TopKTables == 0 {
		cfg.Reasoning.TopKTables = 3
	}
	if cfg.Reasoning.KnowledgeTopK == 0 {
		cfg.Reasoning.KnowledgeTopK = 3
	}

	// Session defaults
	if cfg.Session.WindowSize == 0 {
		cfg.Session.WindowSize = 3
	}
	if cfg.Session.CacheTTL == 0 {
		cfg.Session.CacheTTL = 300
	}
	if cfg.Session.CacheBackend == "" {
		cfg.Session.CacheBackend = "memory"
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 3600
	}

	if cfg.Reports.Path == "" {
		cfg.Reports.Path = "reports.json"
	}
	if cfg.Reports.ExecutionLog == "" {
		cfg.Reports.ExecutionLog = "report_execution.log"
	}

	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	if cfg.Index.SchemaIndex == "" {
		cfg.Index.SchemaIndex = "querybot-schema"
	}
	if cfg.Index.HistoryIndex == "" {
		cfg.Index.HistoryIndex = "querybot-history"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120000
	}

	if cfg.Scheduler.SchemaRefresh == "" {
		cfg.Scheduler.SchemaRefresh = "@every 6h"
	}
	if cfg.Scheduler.SessionPrune == "" {
		cfg.Scheduler.SessionPrune = "@every 5m"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Database.SQL.Driver {
	case DriverPostgres, DriverMySQL:
		if cfg.Database.SQL.DSN == "" {
			if cfg.Database.SQL.Host == "" {
				return fmt.Errorf("database.sql.host is required for %s", cfg.Database.SQL.Driver)
			}
			if cfg.Database.SQL.Database == "" {
				return fmt.Errorf("database.sql.database is required for %s", cfg.Database.SQL.Driver)
			}
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.sql.driver %q is not supported", cfg.Database.SQL.Driver)
	}

	switch cfg.LLM.Provider {
	case "genai":
		if cfg.LLM.BaseURL == "" {
			return fmt.Errorf("llm.base_url is required for the genai provider")
		}
	case "openai":
	default:
		return fmt.Errorf("llm.provider %q is not supported", cfg.LLM.Provider)
	}

	switch cfg.Session.CacheBackend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required when session.cache_backend is redis")
		}
	default:
		return fmt.Errorf("session.cache_backend %q is not supported", cfg.Session.CacheBackend)
	}

	switch cfg.Index.Backend {
	case "memory":
	case "elasticsearch":
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required when index.backend is elasticsearch")
		}
	default:
		return fmt.Errorf("index.backend %q is not supported", cfg.Index.Backend)
	}

	if cfg.Session.WindowSize < 0 {
		return fmt.Errorf("session.window_size must not be negative")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
