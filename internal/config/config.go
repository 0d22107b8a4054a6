// Package config loads server configuration from an optional YAML file and
// WRITEFLOW_-prefixed environment variables, env taking precedence.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Image     ImageConfig     `koanf:"image"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	DB        DBConfig        `koanf:"db"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// LLMConfig points at an OpenAI-compatible chat completions API.
type LLMConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// ImageConfig points at the image-generation API used for covers.
type ImageConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// EmbeddingConfig points at the embeddings API used for material retrieval.
// An empty model disables embeddings; materials then stay pending.
type EmbeddingConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

type DBConfig struct {
	Path string `koanf:"path"`
}

// Load reads configPath (skipped when absent) and then the environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	// WRITEFLOW_LLM_API_KEY -> llm.api_key: only the first underscore
	// separates the section from the key.
	if err := k.Load(env.Provider("WRITEFLOW_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "WRITEFLOW_"))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8000)
	}
	if !k.Exists("llm.base_url") {
		k.Set("llm.base_url", "https://api.openai.com/v1")
	}
	if !k.Exists("llm.model") {
		k.Set("llm.model", "gpt-4o-mini")
	}
	if !k.Exists("image.base_url") {
		k.Set("image.base_url", "https://ark.cn-beijing.volces.com")
	}
	if !k.Exists("image.model") {
		k.Set("image.model", "doubao-seedream-4-5-251128")
	}
	if !k.Exists("db.path") {
		k.Set("db.path", "./data/writeflow.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
