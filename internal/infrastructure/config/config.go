package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	VectorDB  VectorDBConfig  `yaml:"vectordb"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"` // 固定端口，用于单例锁
}

// DatabaseConfig 归档数据库配置
type DatabaseConfig struct {
	// Path conversations.db 路径，留空表示使用数据目录默认值
	Path string `yaml:"path"`
}

// VectorDBConfig 向量库配置
type VectorDBConfig struct {
	// Path 向量库文件路径，留空表示使用数据目录默认值
	Path string `yaml:"path"`
}

// EmbeddingConfig Embedding API 配置
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// LLMConfig LLM Chat API 配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// IndexConfig 索引配置
type IndexConfig struct {
	// MinWords / MaxWords 切片词数边界
	MinWords int `yaml:"min_words"`
	MaxWords int `yaml:"max_words"`
	// MinChunkWords 检索时过滤小切片的词数下限，0 表示关闭
	MinChunkWords int `yaml:"min_chunk_words"`
}

// NewConfig 创建配置（默认值 + 配置文件 + 环境变量覆盖）
func NewConfig() *Config {
	cfg := defaultConfig()

	// 配置文件可选，不存在时静默跳过
	path := filepath.Join(GetDataDir(), "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, cfg)
	}

	cfg.applyEnv()
	return cfg
}

// LoadFromFile 从指定文件加载配置（用于测试与命令行覆盖）
func LoadFromFile(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":18760",
		},
		Index: IndexConfig{
			MinWords:      300,
			MaxWords:      800,
			MinChunkWords: 30,
		},
	}
}

// applyEnv 环境变量覆盖（优先级最高）
func (c *Config) applyEnv() {
	if v := os.Getenv("LODE_HTTP_PORT"); v != "" {
		c.Server.HTTPPort = v
	}
	if v := os.Getenv("LODE_EMBEDDING_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("LODE_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("LODE_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("LODE_LLM_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LODE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LODE_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
}

// DatabasePath 归档数据库路径
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(GetDataDir(), "conversations.db")
}

// VectorDBPath 向量库文件路径
func (c *Config) VectorDBPath() string {
	if c.VectorDB.Path != "" {
		return c.VectorDB.Path
	}
	return filepath.Join(GetDataDir(), "conversations_vectordb.db")
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewIndexConfig 创建索引配置
func NewIndexConfig(cfg *Config) *IndexConfig {
	return &cfg.Index
}
