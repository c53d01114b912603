package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the retrievex engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Keyword   KeywordConfig   `yaml:"keyword"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
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

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey (same wire protocol)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// KeywordConfig holds keyword (full-text) store settings.
type KeywordConfig struct {
	// IndexPath is the on-disk bleve index location. Empty means in-memory.
	IndexPath string `yaml:"index_path"`
}

// IndexConfig holds HNSW index settings for the chunk vector index.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
	// CacheTTLSec bounds the query expansion cache lifetime.
	CacheTTLSec int `yaml:"cache_ttl_sec"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// RetrievalConfig holds the tuning knobs of the retrieval pipeline. The
// numeric defaults are empirically tuned starting points, not invariants;
// they are validated by the property tests and can be re-tuned per corpus.
type RetrievalConfig struct {
	Scoring   ScoringConfig   `yaml:"scoring"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Funnel    FunnelConfig    `yaml:"funnel"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// ScoringConfig holds document scoring and hybrid fusion weights.
type ScoringConfig struct {
	MaxSimilarityWeight float64 `yaml:"max_similarity_weight"`
	AvgSimilarityWeight float64 `yaml:"avg_similarity_weight"`
	PositionWeight      float64 `yaml:"position_weight"`
	DiversityBonusStep  float64 `yaml:"diversity_bonus_step"`
	DiversityBonusCap   float64 `yaml:"diversity_bonus_cap"`
	VectorWeight        float64 `yaml:"vector_weight"`
	KeywordWeight       float64 `yaml:"keyword_weight"`
}

// ExpansionConfig holds query expansion settings.
type ExpansionConfig struct {
	MaxVariants   int     `yaml:"max_variants"`
	MinWeight     float64 `yaml:"min_weight"`
	BaseThreshold float64 `yaml:"base_threshold"`
}

// FunnelConfig holds multi-stage funnel settings.
type FunnelConfig struct {
	RecallThreshold      float64 `yaml:"recall_threshold"`
	RecallMultiplier     int     `yaml:"recall_multiplier"`
	FilterRetentionFloor float64 `yaml:"filter_retention_floor"`
	DiversityOverlapMax  float64 `yaml:"diversity_overlap_max"`
}

// LimitsConfig holds fan-out limits and external call timeouts.
type LimitsConfig struct {
	CandidateMultiplier int `yaml:"candidate_multiplier"`
	KeywordLimit        int `yaml:"keyword_limit"`
	MultiQueryWorkers   int `yaml:"multi_query_workers"`
	MultiQueryPerCall   int `yaml:"multi_query_per_call"`
	CallTimeoutSec      int `yaml:"call_timeout_sec"`
	MaxRetries          int `yaml:"max_retries"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 3600
	}

	s := &c.Retrieval.Scoring
	if s.MaxSimilarityWeight <= 0 {
		s.MaxSimilarityWeight = 0.5
	}
	if s.AvgSimilarityWeight <= 0 {
		s.AvgSimilarityWeight = 0.3
	}
	if s.PositionWeight <= 0 {
		s.PositionWeight = 0.2
	}
	if s.DiversityBonusStep <= 0 {
		s.DiversityBonusStep = 0.05
	}
	if s.DiversityBonusCap <= 0 {
		s.DiversityBonusCap = 0.2
	}
	if s.VectorWeight <= 0 {
		s.VectorWeight = 0.7
	}
	if s.KeywordWeight <= 0 {
		s.KeywordWeight = 0.3
	}

	e := &c.Retrieval.Expansion
	if e.MaxVariants <= 0 {
		e.MaxVariants = 4
	}
	if e.MinWeight <= 0 {
		e.MinWeight = 0.3
	}
	if e.BaseThreshold <= 0 {
		e.BaseThreshold = 0.3
	}

	f := &c.Retrieval.Funnel
	if f.RecallThreshold <= 0 {
		f.RecallThreshold = 0.15
	}
	if f.RecallMultiplier <= 0 {
		f.RecallMultiplier = 20
	}
	if f.FilterRetentionFloor <= 0 {
		f.FilterRetentionFloor = 0.3
	}
	if f.DiversityOverlapMax <= 0 {
		f.DiversityOverlapMax = 0.7
	}

	l := &c.Retrieval.Limits
	if l.CandidateMultiplier <= 0 {
		l.CandidateMultiplier = 3
	}
	if l.KeywordLimit <= 0 {
		l.KeywordLimit = 10
	}
	if l.MultiQueryWorkers <= 0 {
		l.MultiQueryWorkers = 4
	}
	if l.MultiQueryPerCall <= 0 {
		l.MultiQueryPerCall = 5
	}
	if l.CallTimeoutSec <= 0 {
		l.CallTimeoutSec = 15
	}
	if l.MaxRetries < 0 {
		l.MaxRetries = 0
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "", "redis", "valkey":
		// ok
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	for name, p := range c.Embedding.Providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}

	s := c.Retrieval.Scoring
	if s.VectorWeight+s.KeywordWeight > 0 {
		sum := s.VectorWeight + s.KeywordWeight
		if sum < 0.99 || sum > 1.01 {
			return fmt.Errorf(
				"retrieval.scoring vector_weight + keyword_weight must sum to 1, got %.2f", sum,
			)
		}
	}

	f := c.Retrieval.Funnel
	if f.FilterRetentionFloor > 1 {
		return fmt.Errorf("retrieval.funnel.filter_retention_floor must be <= 1, got %.2f", f.FilterRetentionFloor)
	}
	if f.DiversityOverlapMax > 1 {
		return fmt.Errorf("retrieval.funnel.diversity_overlap_max must be <= 1, got %.2f", f.DiversityOverlapMax)
	}

	if c.Retrieval.Limits.MultiQueryPerCall > 5 {
		return fmt.Errorf("retrieval.limits.multi_query_per_call must be <= 5, got %d", c.Retrieval.Limits.MultiQueryPerCall)
	}

	return nil
}

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
