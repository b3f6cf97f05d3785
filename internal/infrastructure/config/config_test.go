package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, ":18760", cfg.Server.HTTPPort)
	assert.Equal(t, 300, cfg.Index.MinWords)
	assert.Equal(t, 800, cfg.Index.MaxWords)
	assert.Equal(t, 30, cfg.Index.MinChunkWords)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  http_port: ":28760"
embedding:
  base_url: "http://localhost:1234/v1"
  model: "bge-small-en-v1.5"
index:
  min_words: 100
  max_words: 400
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":28760", cfg.Server.HTTPPort)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "bge-small-en-v1.5", cfg.Embedding.Model)
	assert.Equal(t, 100, cfg.Index.MinWords)
	assert.Equal(t, 400, cfg.Index.MaxWords)
	// 未覆盖的字段保持默认值
	assert.Equal(t, 30, cfg.Index.MinChunkWords)
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LODE_HTTP_PORT", ":38760")
	t.Setenv("LODE_LLM_MODEL", "gpt-4o")

	cfg := defaultConfig()
	cfg.applyEnv()

	assert.Equal(t, ":38760", cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestDataPaths(t *testing.T) {
	cfg := defaultConfig()

	// 默认路径基于数据目录
	assert.Equal(t, filepath.Join(GetDataDir(), "conversations.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(GetDataDir(), "conversations_vectordb.db"), cfg.VectorDBPath())

	// 显式配置优先
	cfg.Database.Path = "/tmp/custom.db"
	cfg.VectorDB.Path = "/tmp/custom_vec.db"
	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath())
	assert.Equal(t, "/tmp/custom_vec.db", cfg.VectorDBPath())
}
