package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/askdex/internal/domain/tool"
)

// Config holds the askdex API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	Auth         AuthConfig         `yaml:"auth"`
	Database     DatabaseConfig     `yaml:"database"`
	Index        IndexConfig        `yaml:"index"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	WebSearch    WebSearchConfig    `yaml:"web_search"`
	Reranker     RerankerConfig     `yaml:"reranker"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Router       RouterConfig       `yaml:"router"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	History      HistoryConfig      `yaml:"history"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig describes the document search index.
type IndexConfig struct {
	Name            string `yaml:"name"`
	KeyPrefix       string `yaml:"key_prefix"`
	Dimensions      int    `yaml:"dimensions"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// PostgresConfig holds the structured store settings. An empty DSN disables the database tool.
type PostgresConfig struct {
	DSN                 string `yaml:"dsn"`
	MaxConns            int    `yaml:"max_conns"`
	RowLimit            int    `yaml:"row_limit"`
	StatementTimeoutSec int    `yaml:"statement_timeout_sec"`
	SchemaDescription   string `yaml:"schema_description"`
}

// LLMConfig holds chat completion settings.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
	BackoffMS   int     `yaml:"backoff_ms"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	CacheSize     int    `yaml:"cache_size"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
	// QueryInstruction is prepended to questions for asymmetric embedding models.
	QueryInstruction string `yaml:"query_instruction"`
}

// WebSearchConfig holds web search settings. An empty APIKey disables the web tool.
type WebSearchConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	MaxResults       int    `yaml:"max_results"`
	Depth            string `yaml:"depth"`
	TimeoutSec       int    `yaml:"timeout_sec"`
	SearchTimeoutSec int    `yaml:"search_timeout_sec"`
	MaxParallel      int    `yaml:"max_parallel"`
	Reformulations   int    `yaml:"reformulations"`
}

// RerankerConfig holds reranker settings.
type RerankerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TopN       int    `yaml:"top_n"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RetrievalConfig tunes hybrid document retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// Alpha weighs vector similarity against keyword score. Nil means 0.5.
	Alpha     *float64 `yaml:"alpha"`
	Overfetch int      `yaml:"overfetch"`
	// BoostFloor is the recency multiplier for documents older than the decay window. Nil means 0.5.
	BoostFloor      *float64 `yaml:"boost_floor"`
	DecayWindowDays int      `yaml:"decay_window_days"`
}

// RouterConfig tunes tool selection.
type RouterConfig struct {
	DecisionTimeoutSec int     `yaml:"decision_timeout_sec"`
	DateTimeoutSec     int     `yaml:"date_timeout_sec"`
	MinConfidence      float64 `yaml:"min_confidence"`
}

// OrchestratorConfig holds tool deadlines, keyed by tool name.
type OrchestratorConfig struct {
	DefaultTimeoutSec int            `yaml:"default_timeout_sec"`
	ToolTimeouts      map[string]int `yaml:"tool_timeouts_sec"`
}

// HistoryConfig holds conversation memory settings.
type HistoryConfig struct {
	TTLHours  int `yaml:"ttl_hours"`
	MaxTurns  int `yaml:"max_turns"`
	MaxStored int `yaml:"max_stored"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "askdex:docs"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "askdex:doc:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 1000
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 7
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = c.Embedding.Dimensions
	}
	if c.LLM.BackoffMS <= 0 {
		c.LLM.BackoffMS = 500
	}
	if c.WebSearch.MaxResults <= 0 {
		c.WebSearch.MaxResults = 5
	}
	if c.WebSearch.TimeoutSec <= 0 {
		c.WebSearch.TimeoutSec = 10
	}
	if c.WebSearch.SearchTimeoutSec <= 0 {
		c.WebSearch.SearchTimeoutSec = 15
	}
	if c.WebSearch.MaxParallel <= 0 {
		c.WebSearch.MaxParallel = 3
	}
	if c.WebSearch.Reformulations <= 0 {
		c.WebSearch.Reformulations = 3
	}
	if c.Reranker.TopN <= 0 {
		c.Reranker.TopN = 20
	}
	if c.Reranker.TimeoutSec <= 0 {
		c.Reranker.TimeoutSec = 5
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.Alpha == nil {
		c.Retrieval.Alpha = ptr(0.5)
	}
	if c.Retrieval.BoostFloor == nil {
		c.Retrieval.BoostFloor = ptr(0.5)
	}
	if c.Retrieval.Overfetch <= 0 {
		c.Retrieval.Overfetch = 3
	}
	if c.Retrieval.DecayWindowDays <= 0 {
		c.Retrieval.DecayWindowDays = 365
	}
	if c.Router.DecisionTimeoutSec <= 0 {
		c.Router.DecisionTimeoutSec = 20
	}
	if c.Router.DateTimeoutSec <= 0 {
		c.Router.DateTimeoutSec = 10
	}
	if c.Orchestrator.DefaultTimeoutSec <= 0 {
		c.Orchestrator.DefaultTimeoutSec = 60
	}
	if c.History.TTLHours <= 0 {
		c.History.TTLHours = 24
	}
	if c.History.MaxTurns <= 0 {
		c.History.MaxTurns = 10
	}
	if c.History.MaxStored <= 0 {
		c.History.MaxStored = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	if c.Logging.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
		}
	}
	if c.Index.Dimensions <= 0 {
		return errors.New("index.dimensions (or embedding.dimensions) must be positive")
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding.model is required")
	}
	if a := c.Retrieval.Alpha; a != nil && (*a < 0 || *a > 1) {
		return fmt.Errorf("retrieval.alpha must be within [0,1], got %v", *a)
	}
	if f := c.Retrieval.BoostFloor; f != nil && (*f < 0 || *f > 1) {
		return fmt.Errorf("retrieval.boost_floor must be within [0,1], got %v", *f)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK)
	}
	if c.Router.MinConfidence < 0 || c.Router.MinConfidence > 1 {
		return fmt.Errorf("router.min_confidence must be within [0,1], got %v", c.Router.MinConfidence)
	}
	if c.Reranker.Enabled && c.Reranker.TopN < c.Retrieval.TopK {
		return fmt.Errorf("reranker.top_n (%d) must be at least retrieval.top_k (%d)",
			c.Reranker.TopN, c.Retrieval.TopK)
	}
	for name, sec := range c.Orchestrator.ToolTimeouts {
		if !tool.Name(name).IsValid() {
			return fmt.Errorf("orchestrator.tool_timeouts_sec: unknown tool %q", name)
		}
		if sec <= 0 {
			return fmt.Errorf("orchestrator.tool_timeouts_sec.%s must be positive, got %d", name, sec)
		}
	}
	return nil
}

// ToolTimeoutDurations converts per-tool deadlines to durations.
func (o OrchestratorConfig) ToolTimeoutDurations() map[tool.Name]time.Duration {
	out := make(map[tool.Name]time.Duration, len(o.ToolTimeouts))
	for name, sec := range o.ToolTimeouts {
		out[tool.Name(name)] = time.Duration(sec) * time.Second
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
