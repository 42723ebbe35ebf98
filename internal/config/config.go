package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"teabot/internal/domain"
	"teabot/internal/embedding"
	"teabot/internal/evaluation"
	"teabot/internal/service"
)

// Built-in system contexts, used when no file or inline text is configured.
const (
	DefaultSystemContext     = "You are a helpful tea recommender."
	DefaultEvalSystemContext = evaluation.DefaultSystemContext
)

// OllamaConfig holds connection details for an Ollama server.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Timeout returns the request timeout.
func (c *OllamaConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// OpenAIConfig holds configuration for OpenAI or a compatible endpoint. The
// API key itself is read from the environment variable named by APIKeyEnv.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// APIKey resolves the key from the environment.
func (c *OpenAIConfig) APIKey() string { return os.Getenv(c.APIKeyEnv) }

// Timeout returns the request timeout.
func (c *OpenAIConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// CatalogConfig locates the tea catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
	// RawPath is the catalog without embeddings read by the embed tool.
	RawPath string `yaml:"raw_path"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type           string        `yaml:"type"`
	QueryPrefix    string        `yaml:"query_prefix"`
	DocumentPrefix string        `yaml:"document_prefix"`
	DocumentStyle  string        `yaml:"document_style"`
	Ollama         *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI         *OpenAIConfig `yaml:"openai,omitempty"`
}

// GeneratorConfig selects and configures the language model. Temperature is
// nil when unset, so an explicit 0 survives the defaults.
type GeneratorConfig struct {
	Type        string        `yaml:"type"`
	Temperature *float64      `yaml:"temperature,omitempty"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty"`
}

// RetrieverConfig picks brute-force ranking over the catalog embeddings
// ("ranker") or a vector index built at startup ("index").
type RetrieverConfig struct {
	Type string `yaml:"type"`
}

// VectorStoreConfig selects and configures the vector index implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Timeout returns the HTTP timeout.
func (c *QdrantConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// PgvectorConfig contains connection details for PostgreSQL. The DSN is read
// from the environment variable named by DSNEnv unless DSN is set.
type PgvectorConfig struct {
	DSN    string `yaml:"dsn,omitempty"`
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// ResolveDSN returns DSN or the value of DSNEnv.
func (c *PgvectorConfig) ResolveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return os.Getenv(c.DSNEnv)
}

// PipelineConfig configures the recommendation pipeline used by the chat
// binary.
type PipelineConfig struct {
	Mode              string `yaml:"mode"`
	TopN              int    `yaml:"top_n"`
	SystemContextFile string `yaml:"system_context_file"`
	SystemContext     string `yaml:"system_context,omitempty"`
}

// EvaluationConfig configures the evaluation harness.
type EvaluationConfig struct {
	CasesPath         string `yaml:"cases_path"`
	Mode              string `yaml:"mode"`
	TopN              int    `yaml:"top_n"`
	SystemContextFile string `yaml:"system_context_file"`
	SystemContext     string `yaml:"system_context,omitempty"`
}

// ServerConfig configures the HTTP serving layer.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	TopN               int    `yaml:"top_n"`
	SystemContextFile  string `yaml:"system_context_file"`
	SystemContext      string `yaml:"system_context,omitempty"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Catalog     CatalogConfig     `yaml:"catalog"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Resolve loads the configuration once for a binary: path if given, else
// the default locations, then environment overrides, then validation.
func Resolve(path string) (*AppConfig, string, error) {
	var (
		cfg *AppConfig
		err error
	)
	if path != "" {
		cfg, err = Load(path)
	} else {
		cfg, path, err = LoadDefault()
	}
	if err != nil {
		return nil, "", err
	}
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigurationError{Path: path, Err: err}
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./teabot.yaml first, then <user config dir>/teabot/config.yaml.
// If neither exists, it writes defaults to the user path when possible and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "teabot.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return defaultConfig(), "", nil
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return cfg, "", nil
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "teabot", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "data/tea_data_final.json"
	}
	if cfg.Catalog.RawPath == "" {
		cfg.Catalog.RawPath = "data/mock_tea_data.json"
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Embedder.DocumentStyle == "" {
		cfg.Embedder.DocumentStyle = string(embedding.StyleLabeled)
	}
	switch cfg.Embedder.Type {
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		applyOllamaDefaults(cfg.Embedder.Ollama, "nomic-embed-text")
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "text-embedding-ada-002")
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "ollama"
	}
	if cfg.Generator.Temperature == nil {
		t := service.DefaultTemperature
		cfg.Generator.Temperature = &t
	}
	switch cfg.Generator.Type {
	case "ollama":
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaConfig{}
		}
		applyOllamaDefaults(cfg.Generator.Ollama, "gpt-oss:20b")
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Generator.OpenAI, "gpt-3.5-turbo")
	}

	if cfg.Retriever.Type == "" {
		cfg.Retriever.Type = "ranker"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "teabot_items"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	case "pgvector":
		if cfg.VectorStore.Pgvector == nil {
			cfg.VectorStore.Pgvector = &PgvectorConfig{}
		}
		if cfg.VectorStore.Pgvector.DSNEnv == "" {
			cfg.VectorStore.Pgvector.DSNEnv = "TEABOT_POSTGRES_DSN"
		}
		if cfg.VectorStore.Pgvector.Table == "" {
			cfg.VectorStore.Pgvector.Table = "teabot_items"
		}
	}

	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = string(service.ModeRetrieval)
	}
	if cfg.Pipeline.TopN == 0 {
		cfg.Pipeline.TopN = service.DefaultTopN
	}
	if cfg.Pipeline.SystemContextFile == "" {
		cfg.Pipeline.SystemContextFile = "data/system_context.txt"
	}

	if cfg.Evaluation.CasesPath == "" {
		cfg.Evaluation.CasesPath = "data/test_data.json"
	}
	if cfg.Evaluation.TopN == 0 {
		cfg.Evaluation.TopN = 1
	}
	if cfg.Evaluation.Mode == "" {
		cfg.Evaluation.Mode = string(evaluation.ModeRetrieval)
	}
	if cfg.Evaluation.SystemContextFile == "" {
		cfg.Evaluation.SystemContextFile = "data/system_context_eval.txt"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8021"
	}
	if cfg.Server.TopN == 0 {
		cfg.Server.TopN = 2
	}
	if cfg.Server.SystemContextFile == "" {
		cfg.Server.SystemContextFile = cfg.Evaluation.SystemContextFile
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 120
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func applyOllamaDefaults(c *OllamaConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 120
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 60
	}
}

// ApplyEnv overlays the supported environment variables on cfg. getenv is
// usually os.Getenv.
func ApplyEnv(cfg *AppConfig, getenv func(string) string) error {
	if v := getenv("OLLAMA_URL"); v != "" {
		if cfg.Embedder.Ollama != nil {
			cfg.Embedder.Ollama.BaseURL = v
		}
		if cfg.Generator.Ollama != nil {
			cfg.Generator.Ollama.BaseURL = v
		}
	}
	if v := getenv("OLLAMA_MODEL"); v != "" && cfg.Generator.Ollama != nil {
		cfg.Generator.Ollama.Model = v
	}
	if v := getenv("OLLAMA_EMBEDDING_MODEL"); v != "" && cfg.Embedder.Ollama != nil {
		cfg.Embedder.Ollama.Model = v
	}
	if v := getenv("RETRIEVAL_N"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return &domain.ConfigurationError{Setting: "RETRIEVAL_N", Err: fmt.Errorf("must be a positive integer, got %q", v)}
		}
		cfg.Pipeline.TopN = n
	}
	if v := getenv("TEABOT_CATALOG"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := getenv("TEABOT_SYSTEM_CONTEXT"); v != "" {
		cfg.Pipeline.SystemContextFile = v
	}
	return nil
}

// Validate checks the type switches and numeric settings.
func (c *AppConfig) Validate() error {
	invalid := func(setting string, err error) error {
		return &domain.ConfigurationError{Setting: setting, Err: err}
	}
	if c.Catalog.Path == "" {
		return invalid("catalog.path", errors.New("must be set"))
	}
	switch c.Embedder.Type {
	case "ollama", "openai", "tfidf":
	default:
		return invalid("embedder.type", fmt.Errorf("unknown embedder %q", c.Embedder.Type))
	}
	if _, err := embedding.ParseDocumentStyle(c.Embedder.DocumentStyle); err != nil {
		return invalid("embedder.document_style", err)
	}
	switch c.Generator.Type {
	case "ollama", "openai":
	default:
		return invalid("generator.type", fmt.Errorf("unknown generator %q", c.Generator.Type))
	}
	if t := c.Generator.Temperature; t != nil && (*t < 0 || *t > 2) {
		return invalid("generator.temperature", fmt.Errorf("out of range: %v", *t))
	}
	switch c.Retriever.Type {
	case "ranker", "index":
	default:
		return invalid("retriever.type", fmt.Errorf("unknown retriever %q", c.Retriever.Type))
	}
	switch c.VectorStore.Type {
	case "memory", "qdrant", "pgvector":
	default:
		return invalid("vector_store.type", fmt.Errorf("unknown vector store %q", c.VectorStore.Type))
	}
	if _, err := service.ParseMode(c.Pipeline.Mode); err != nil {
		return invalid("pipeline.mode", err)
	}
	if c.Pipeline.TopN <= 0 {
		return invalid("pipeline.top_n", errors.New("must be positive"))
	}
	if _, err := evaluation.ParseMode(c.Evaluation.Mode); err != nil {
		return invalid("evaluation.mode", err)
	}
	if c.Evaluation.TopN <= 0 {
		return invalid("evaluation.top_n", errors.New("must be positive"))
	}
	if c.Server.TopN <= 0 {
		return invalid("server.top_n", errors.New("must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return invalid("logging.format", fmt.Errorf("unknown format %q", c.Logging.Format))
	}
	return nil
}

// GenerationTimeout returns the HTTP timeout of the configured generator,
// or two minutes when none is set.
func (c *AppConfig) GenerationTimeout() time.Duration {
	switch {
	case c.Generator.Type == "openai" && c.Generator.OpenAI != nil && c.Generator.OpenAI.TimeoutSecs > 0:
		return c.Generator.OpenAI.Timeout()
	case c.Generator.Type == "ollama" && c.Generator.Ollama != nil && c.Generator.Ollama.TimeoutSecs > 0:
		return c.Generator.Ollama.Timeout()
	}
	return 2 * time.Minute
}

// PipelineSystemContext returns the chat system context.
func (c *AppConfig) PipelineSystemContext() (string, error) {
	return LoadSystemContext(c.Pipeline.SystemContext, c.Pipeline.SystemContextFile, DefaultSystemContext)
}

// EvaluationSystemContext returns the JSON-only evaluation system context.
func (c *AppConfig) EvaluationSystemContext() (string, error) {
	return LoadSystemContext(c.Evaluation.SystemContext, c.Evaluation.SystemContextFile, DefaultEvalSystemContext)
}

// ServerSystemContext returns the system context used by the HTTP API.
func (c *AppConfig) ServerSystemContext() (string, error) {
	return LoadSystemContext(c.Server.SystemContext, c.Server.SystemContextFile, DefaultEvalSystemContext)
}

// LoadSystemContext returns inline when set, else the trimmed content of
// file, else fallback when the file does not exist.
func LoadSystemContext(inline, file, fallback string) (string, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return s, nil
	}
	if file == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, nil
		}
		return "", &domain.ConfigurationError{Setting: "system_context_file", Path: file, Err: err}
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s, nil
	}
	return fallback, nil
}
