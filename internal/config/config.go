package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the coderank-eval configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Paths      PathsConfig      `yaml:"paths"`
	Datasets   DatasetsConfig   `yaml:"datasets"`
	Source     SourceConfig     `yaml:"source"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Reranker   RerankerConfig   `yaml:"reranker"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Cache      CacheConfig      `yaml:"cache"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// PathsConfig holds on-disk locations.
type PathsConfig struct {
	DatasetDir string `yaml:"dataset_dir"` // BEIR datasets; rerank reads <dataset_dir>/code_datasets
	OutputDir  string `yaml:"output_dir"`  // reranker outputs
	EvalDir    string `yaml:"eval_dir"`    // <eval_dir>/eval_results/<name>_eval.json
	ResultsDir string `yaml:"results_dir"` // overall_results.jsonl
}

// DatasetsConfig selects which datasets commands operate on.
type DatasetsConfig struct {
	Languages []string `yaml:"languages"`
	Rerank    []string `yaml:"rerank"` // dataset names, or ["all"]
	Split     string   `yaml:"split"`
}

// SourceConfig describes where prepare reads raw CodeSearchNet data from.
type SourceConfig struct {
	Kind      string `yaml:"kind"` // graphcodebert | huggingface
	CSNDir    string `yaml:"csn_dir"`
	HFDataset string `yaml:"hf_dataset"`
	HFToken   string `yaml:"hf_token"`
	CacheDir  string `yaml:"cache_dir"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
	Normalize           bool   `yaml:"normalize"`

	// TokenBudget caps tokens per run; 0 is unlimited.
	TokenBudget  int64  `yaml:"token_budget"`
	BudgetAction string `yaml:"budget_action"` // warn | reject
}

// RetrievalConfig holds retriever evaluation settings.
type RetrievalConfig struct {
	TopN int `yaml:"top_n"`
}

// RerankerConfig holds external reranker invocation settings.
type RerankerConfig struct {
	Dir        string `yaml:"dir"`
	Python     string `yaml:"python"`
	Model      string `yaml:"model"`
	TopK       int    `yaml:"top_k"`
	WindowSize int    `yaml:"window_size"`
	StepSize   int    `yaml:"step_size"`
}

// EvaluationConfig holds MRR@k settings.
type EvaluationConfig struct {
	Cutoffs []int `yaml:"cutoffs"`
}

// CacheConfig holds embedding cache settings. Empty Addrs disables the cache.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLHours         int      `yaml:"ttl_hours"` // 0 = no expiry
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether an embedding cache is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLHours) * time.Hour }

// HTTPConfig holds HTTP server settings for serve.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`

	// APIKeys protects /v1 routes with Bearer auth; empty disables auth.
	APIKeys []string `yaml:"api_keys"`
}

// MetricsConfig holds the /metrics endpoint for batch commands. Empty port disables it.
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// Default values.
const (
	DefaultQueryInstruction = "Represent this query for searching relevant code: "
	DefaultRerankModel      = "cornstack/CodeRankLLM"
	SourceGraphCodeBERT     = "graphcodebert"
	SourceHuggingFace       = "huggingface"
	RerankAll               = "all"
)

// DefaultLanguages are the CodeSearchNet languages.
var DefaultLanguages = []string{"python", "java", "ruby", "php", "javascript", "go"}

// DefaultCutoffs are the MRR@k cutoffs reported for reranker output.
var DefaultCutoffs = []int{1, 3, 5, 10, 20, 100}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, expands ${VAR}, applies defaults and validates.
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
func (c *Config) ApplyDefaults() {
	if c.Paths.DatasetDir == "" {
		c.Paths.DatasetDir = "datasets"
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = "outputs"
	}
	if c.Paths.EvalDir == "" {
		c.Paths.EvalDir = "eval"
	}
	if c.Paths.ResultsDir == "" {
		c.Paths.ResultsDir = filepath.Join("results", "csn")
	}

	if len(c.Datasets.Languages) == 0 {
		c.Datasets.Languages = append([]string(nil), DefaultLanguages...)
	}
	if len(c.Datasets.Rerank) == 0 {
		c.Datasets.Rerank = []string{"csn_ruby"}
	}
	if c.Datasets.Split == "" {
		c.Datasets.Split = "test"
	}

	if c.Source.Kind == "" {
		c.Source.Kind = SourceGraphCodeBERT
	}
	if c.Source.CSNDir == "" {
		c.Source.CSNDir = "CSN"
	}
	if c.Source.HFDataset == "" {
		c.Source.HFDataset = "code-search-net/code_search_net"
	}
	if c.Source.CacheDir == "" {
		c.Source.CacheDir = filepath.Join("CSN", "hf")
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.BudgetAction == "" {
		c.Embedding.BudgetAction = "reject"
	}
	if c.Embedding.QueryInstruction == "" {
		c.Embedding.QueryInstruction = DefaultQueryInstruction
	}

	if c.Retrieval.TopN <= 0 {
		c.Retrieval.TopN = 1000
	}

	if c.Reranker.Dir == "" {
		c.Reranker.Dir = "llm-reranker"
	}
	if c.Reranker.Python == "" {
		c.Reranker.Python = "python"
	}
	if c.Reranker.Model == "" {
		c.Reranker.Model = DefaultRerankModel
	}
	if c.Reranker.TopK <= 0 {
		c.Reranker.TopK = 100
	}
	if c.Reranker.WindowSize <= 0 {
		c.Reranker.WindowSize = 10
	}
	if c.Reranker.StepSize <= 0 {
		c.Reranker.StepSize = 5
	}

	if len(c.Evaluation.Cutoffs) == 0 {
		c.Evaluation.Cutoffs = append([]int(nil), DefaultCutoffs...)
	}

	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}

	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Source.Kind {
	case SourceGraphCodeBERT, SourceHuggingFace:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q",
			SourceGraphCodeBERT, SourceHuggingFace, c.Source.Kind)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.TokenBudget < 0 {
		return fmt.Errorf("embedding.token_budget must not be negative, got %d", c.Embedding.TokenBudget)
	}
	if c.Embedding.BudgetAction != "warn" && c.Embedding.BudgetAction != "reject" {
		return fmt.Errorf("embedding.budget_action must be warn or reject, got %q", c.Embedding.BudgetAction)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	for _, k := range c.Evaluation.Cutoffs {
		if k <= 0 {
			return fmt.Errorf("evaluation.cutoffs must be positive, got %d", k)
		}
	}
	if c.Reranker.StepSize > c.Reranker.WindowSize {
		return fmt.Errorf("reranker.step_size (%d) must not exceed reranker.window_size (%d)",
			c.Reranker.StepSize, c.Reranker.WindowSize)
	}
	if c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must not be negative, got %d", c.Cache.TTLHours)
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
