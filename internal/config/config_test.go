package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teabot/internal/domain"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func float(v float64) *float64 { return &v }

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedder.Type)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Ollama.Model)
	assert.Equal(t, "gpt-oss:20b", cfg.Generator.Ollama.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Generator.Ollama.BaseURL)
	assert.Equal(t, 3, cfg.Pipeline.TopN)
	assert.Equal(t, 2, cfg.Server.TopN)
	assert.Equal(t, ":8021", cfg.Server.Addr)
	assert.Equal(t, 1, cfg.Evaluation.TopN)
	require.NotNil(t, cfg.Generator.Temperature)
	assert.InDelta(t, 0.7, *cfg.Generator.Temperature, 1e-12)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teabot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: openai
  query_prefix: "search_query: "
generator:
  type: openai
  openai:
    model: gpt-4o-mini
vector_store:
  type: qdrant
retriever:
  type: index
pipeline:
  mode: inventory
  top_n: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-ada-002", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "search_query: ", cfg.Embedder.QueryPrefix)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.OpenAI.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Generator.OpenAI.BaseURL)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "teabot_items", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, 2, cfg.Pipeline.TopN)
	assert.Nil(t, cfg.Embedder.Ollama)
	assert.NoError(t, cfg.Validate())
}

func TestLoadKeepsZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teabot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  type: ollama\n  temperature: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Generator.Temperature)
	assert.Zero(t, *cfg.Generator.Temperature)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [unclosed"), 0o644))
	_, err := Load(path)
	var cfgErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Pipeline.TopN = 5
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestApplyEnv(t *testing.T) {
	cfg := defaultConfig()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"OLLAMA_URL":             "http://gpu-box:11434",
		"OLLAMA_MODEL":           "llama3",
		"OLLAMA_EMBEDDING_MODEL": "mxbai-embed-large",
		"RETRIEVAL_N":            "2",
		"TEABOT_CATALOG":         "/data/teas.json",
		"TEABOT_SYSTEM_CONTEXT":  "/data/ctx.txt",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedder.Ollama.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.Generator.Ollama.BaseURL)
	assert.Equal(t, "llama3", cfg.Generator.Ollama.Model)
	assert.Equal(t, "mxbai-embed-large", cfg.Embedder.Ollama.Model)
	assert.Equal(t, 2, cfg.Pipeline.TopN)
	assert.Equal(t, "/data/teas.json", cfg.Catalog.Path)
	assert.Equal(t, "/data/ctx.txt", cfg.Pipeline.SystemContextFile)
}

func TestApplyEnvRejectsBadRetrievalN(t *testing.T) {
	for _, v := range []string{"zero", "0", "-1"} {
		err := ApplyEnv(defaultConfig(), envMap(map[string]string{"RETRIEVAL_N": v}))
		var cfgErr *domain.ConfigurationError
		require.True(t, errors.As(err, &cfgErr), v)
		assert.Equal(t, "RETRIEVAL_N", cfgErr.Setting)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		setting string
		mutate  func(*AppConfig)
	}{
		{"embedder.type", func(c *AppConfig) { c.Embedder.Type = "word2vec" }},
		{"embedder.document_style", func(c *AppConfig) { c.Embedder.DocumentStyle = "poetic" }},
		{"generator.type", func(c *AppConfig) { c.Generator.Type = "claude" }},
		{"generator.temperature", func(c *AppConfig) { c.Generator.Temperature = float(3) }},
		{"retriever.type", func(c *AppConfig) { c.Retriever.Type = "faiss" }},
		{"vector_store.type", func(c *AppConfig) { c.VectorStore.Type = "chroma" }},
		{"pipeline.mode", func(c *AppConfig) { c.Pipeline.Mode = "hybrid" }},
		{"pipeline.top_n", func(c *AppConfig) { c.Pipeline.TopN = 0 }},
		{"evaluation.mode", func(c *AppConfig) { c.Evaluation.Mode = "judge" }},
		{"server.top_n", func(c *AppConfig) { c.Server.TopN = -1 }},
		{"logging.level", func(c *AppConfig) { c.Logging.Level = "loud" }},
		{"logging.format", func(c *AppConfig) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.setting, cfgErr.Setting)
		})
	}
}

func TestLoadSystemContext(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ctx.txt")
	require.NoError(t, os.WriteFile(file, []byte("  Be concise.\n"), 0o644))

	s, err := LoadSystemContext("", file, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "Be concise.", s)

	s, err = LoadSystemContext("inline wins", file, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "inline wins", s)

	s, err = LoadSystemContext("", filepath.Join(dir, "missing.txt"), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	s, err = LoadSystemContext("", empty, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)
}

func TestSystemContextFallbacks(t *testing.T) {
	cfg := defaultConfig()
	dir := t.TempDir()
	cfg.Pipeline.SystemContextFile = filepath.Join(dir, "a.txt")
	cfg.Evaluation.SystemContextFile = filepath.Join(dir, "b.txt")
	cfg.Server.SystemContextFile = filepath.Join(dir, "c.txt")

	s, err := cfg.PipelineSystemContext()
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemContext, s)
	s, err = cfg.EvaluationSystemContext()
	require.NoError(t, err)
	assert.Equal(t, "Output ONLY a JSON array of tea names.", s)
	s, err = cfg.ServerSystemContext()
	require.NoError(t, err)
	assert.Equal(t, DefaultEvalSystemContext, s)
}

func TestPgvectorResolveDSN(t *testing.T) {
	t.Setenv("TEABOT_TEST_DSN_VAR", "postgres://env")
	c := &PgvectorConfig{DSNEnv: "TEABOT_TEST_DSN_VAR"}
	assert.Equal(t, "postgres://env", c.ResolveDSN())
	c.DSN = "postgres://inline"
	assert.Equal(t, "postgres://inline", c.ResolveDSN())
}

func TestGenerationTimeout(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, 120*time.Second, cfg.GenerationTimeout())

	cfg.Generator = GeneratorConfig{Type: "openai"}
	assert.Equal(t, 2*time.Minute, cfg.GenerationTimeout())

	cfg.Generator.OpenAI = &OpenAIConfig{TimeoutSecs: 30}
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout())
}
