package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Version is reported by the CLI and the health endpoint.
const Version = "0.3.0"

// Config carries all runtime settings. It is constructed once at startup and
// passed explicitly into each component; there is no package-level instance.
type Config struct {
	// LLM generation
	Model          string   `mapstructure:"model" yaml:"model"`
	FallbackModels []string `mapstructure:"fallback_models" yaml:"fallback_models"`
	OllamaHost     string   `mapstructure:"ollama_host" yaml:"ollama_host"`
	GenTimeoutSec  int      `mapstructure:"gen_timeout_sec" yaml:"gen_timeout_sec"`
	Temperature    float64  `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int      `mapstructure:"max_tokens" yaml:"max_tokens"`

	// Semantic memory
	MemoryEnabled   bool    `mapstructure:"memory_enabled" yaml:"memory_enabled"`
	MemoryPath      string  `mapstructure:"memory_path" yaml:"memory_path"`
	EmbeddingModel  string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	MemoryThreshold float64 `mapstructure:"memory_threshold" yaml:"memory_threshold"`

	// Sandbox execution
	ExecTimeoutSec int  `mapstructure:"exec_timeout_sec" yaml:"exec_timeout_sec"`
	ResetPerQuery  bool `mapstructure:"reset_per_query" yaml:"reset_per_query"`

	// Server
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	UploadsDir string `mapstructure:"uploads_dir" yaml:"uploads_dir"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TABQ")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("model", "qwen2.5-coder:7b")
	v.SetDefault("fallback_models", []string{"llama3.1"})
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("gen_timeout_sec", 120)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("memory_enabled", true)
	v.SetDefault("embedding_model", "nomic-embed-text")
	v.SetDefault("memory_threshold", 0.3)
	// registered empty so env/file values are surfaced; resolved below
	v.SetDefault("memory_path", "")
	v.SetDefault("exec_timeout_sec", 15)
	v.SetDefault("reset_per_query", false)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("uploads_dir", "")
	v.SetDefault("debug", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".tabq")
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.MemoryPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.MemoryPath = filepath.Join(home, ".tabq", "memory.json")
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "uploads"
	}
	return &c, nil
}

// Save writes the given configuration to the cfgFile path and returns the
// path written. If cfgFile is empty, it writes to ~/.tabq/config.yaml,
// creating the directory if needed.
func Save(c *Config, cfgFile string) (string, error) {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".tabq")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
