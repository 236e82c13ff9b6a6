package app

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the service.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// Fetching
	FetchTimeout       time.Duration
	FetchMaxConcurrent int
	UserAgent          string

	// Chunking
	CharsPerToken int
	MaxChunkChars int

	// Orchestration
	MaxParallelURLs int

	Verbose bool
}

// FileConfig is the optional YAML configuration file schema. Nested sections
// map one-to-one onto the dotted flag names.
type FileConfig struct {
	Addr string `yaml:"addr"`

	LLM struct {
		BaseURL string `yaml:"base"`
		Model   string `yaml:"model"`
		APIKey  string `yaml:"key"`
	} `yaml:"llm"`

	Fetch struct {
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
		MaxConcurrent  int    `yaml:"maxConcurrent"`
		UserAgent      string `yaml:"userAgent"`
	} `yaml:"fetch"`

	Chunk struct {
		CharsPerToken int `yaml:"charsPerToken"`
		MaxChars      int `yaml:"maxChars"`
	} `yaml:"chunk"`

	MaxParallelURLs int  `yaml:"maxParallelURLs"`
	Verbose         bool `yaml:"verbose"`
}

// LoadConfigFile reads and parses a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &fc, nil
}

// Apply copies file values into cfg for every field the flags and
// environment left unset, so explicit flags always win over the file.
func (f *FileConfig) Apply(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = f.Addr
	}
	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = f.LLM.BaseURL
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = f.LLM.Model
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = f.LLM.APIKey
	}
	if cfg.FetchTimeout == 0 && f.Fetch.TimeoutSeconds > 0 {
		cfg.FetchTimeout = time.Duration(f.Fetch.TimeoutSeconds) * time.Second
	}
	if cfg.FetchMaxConcurrent == 0 {
		cfg.FetchMaxConcurrent = f.Fetch.MaxConcurrent
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = f.Fetch.UserAgent
	}
	if cfg.CharsPerToken == 0 {
		cfg.CharsPerToken = f.Chunk.CharsPerToken
	}
	if cfg.MaxChunkChars == 0 {
		cfg.MaxChunkChars = f.Chunk.MaxChars
	}
	if cfg.MaxParallelURLs == 0 {
		cfg.MaxParallelURLs = f.MaxParallelURLs
	}
	if f.Verbose {
		cfg.Verbose = true
	}
}
