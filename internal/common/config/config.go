// internal/common/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Session   SessionConfig   `mapstructure:"session"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Index     IndexConfig     `mapstructure:"index"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	SQL           SQLConfig           `mapstructure:"sql"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// SQLConfig describes the database questions are answered against.
type SQLConfig struct {
	Driver         string   `mapstructure:"driver"`
	DSN            string   `mapstructure:"dsn"` // overrides the discrete fields when set
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Database       string   `mapstructure:"database"`
	User           string   `mapstructure:"user"`
	Password       string   `mapstructure:"password"`
	SSLMode        string   `mapstructure:"sslmode"`
	Path           string   `mapstructure:"path"` // sqlite file
	MaxConnections int      `mapstructure:"max_connections"`
	MaxIdle        int      `mapstructure:"max_idle"`
	IncludeTables  []string `mapstructure:"include_tables"`
	QueryTimeout   int      `mapstructure:"query_timeout"` // milliseconds
}

// GetDSN returns the connection string for the configured driver
func (s SQLConfig) GetDSN() string {
	if s.DSN != "" {
		return s.DSN
	}

	switch s.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = s.User
		mc.Passwd = s.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", s.Host, s.Port)
		mc.DBName = s.Database
		mc.ParseTime = true
		return mc.FormatDSN()
	case DriverSQLite:
		return s.Path
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.Host, s.Port, s.User, s.Password, s.Database, s.SSLMode,
		)
	}
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Answering pipeline ---

// LLMConfig selects and tunes the completion backend.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider"` // genai | openai
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Timeout           int     `mapstructure:"timeout"` // milliseconds
	MaxRetries        int     `mapstructure:"max_retries"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type ReasoningConfig struct {
	MaxIterations int  `mapstructure:"max_iterations"`
	TopKTables    int  `mapstructure:"top_k_tables"`
	KnowledgeTopK int  `mapstructure:"knowledge_top_k"`
	Learn         bool `mapstructure:"learn"`
}

type SessionConfig struct {
	WindowSize   int    `mapstructure:"window_size"`
	CacheTTL     int    `mapstructure:"cache_ttl"` // seconds
	CacheBackend string `mapstructure:"cache_backend"`
	IdleTimeout  int    `mapstructure:"idle_timeout"` // seconds
}

// TTL returns the cache entry lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}

// Idle returns how long a session may sit unused before it is pruned.
func (s SessionConfig) Idle() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

type ReportsConfig struct {
	Path         string `mapstructure:"path"`
	ExecutionLog string `mapstructure:"execution_log"`
}

type IndexConfig struct {
	Backend      string `mapstructure:"backend"` // memory | elasticsearch
	SchemaIndex  string `mapstructure:"schema_index"`
	HistoryIndex string `mapstructure:"history_index"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// Address returns host:port for the HTTP listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SchedulerConfig holds cron specs. "-" disables a job.
type SchedulerConfig struct {
	SchemaRefresh string `mapstructure:"schema_refresh"`
	SessionPrune  string `mapstructure:"session_prune"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
