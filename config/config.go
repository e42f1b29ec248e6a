package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "HOAX_GUARD_CONFIG"

// Model providers. All of them speak the OpenAI chat completions protocol.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderLMStudio   = "lmstudio"
)

var providerBaseURLs = map[string]string{
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
	ProviderGroq:       "https://api.groq.com/openai/v1",
	ProviderOpenAI:     "https://api.openai.com/v1",
	ProviderGemini:     "https://generativelanguage.googleapis.com/v1beta/openai",
	ProviderLMStudio:   "http://localhost:1234/v1",
}

var providerKeyEnvs = map[string]string{
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderGroq:       "GROQ_API_KEY",
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderGemini:     "GEMINI_API_KEY",
}

var providerDefaultModels = map[string]string{
	ProviderOpenRouter: "google/gemini-2.0-flash-001",
	ProviderGroq:       "meta-llama/llama-4-scout-17b-16e-instruct",
	ProviderOpenAI:     "gpt-4o-mini",
	ProviderGemini:     "gemini-2.0-flash",
	ProviderLMStudio:   "local-model",
}

type Config struct {
	Port       string      `yaml:"port"`
	Log        LogConfig   `yaml:"log"`
	Model      ModelConfig `yaml:"model"`
	Fetch      FetchConfig `yaml:"fetch"`
	CORS       CORSConfig  `yaml:"cors"`
	Prompts    string      `yaml:"prompts"`
	AdminToken string      `yaml:"adminToken"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ModelConfig describes how to reach the generative model.
type ModelConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	Name        string        `yaml:"name"`
	Temperature *float32      `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Referer     string        `yaml:"referer"`
	AppTitle    string        `yaml:"appTitle"`
}

// FetchConfig bounds the image-by-URL download.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"maxBytes"`
	UserAgent string        `yaml:"userAgent"`

	// AllowPrivateHosts lets image URLs reach loopback, link-local and
	// private networks. Off unless the service only fronts trusted users.
	AllowPrivateHosts bool `yaml:"allowPrivateHosts"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// Load reads .env, the optional YAML file named by HOAX_GUARD_CONFIG and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: cannot read .env", "error", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("PORT", &c.Port)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setString("MODEL_PROVIDER", &c.Model.Provider)
	setString("MODEL_BASE_URL", &c.Model.BaseURL)
	setString("MODEL_NAME", &c.Model.Name)
	setString("MODEL_API_KEY", &c.Model.APIKey)
	setString("PROMPTS_PATH", &c.Prompts)
	setString("ADMIN_TOKEN", &c.AdminToken)
	setString("FETCH_USER_AGENT", &c.Fetch.UserAgent)

	if v := os.Getenv("MODEL_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("MODEL_TEMPERATURE: %w", err)
		}
		t := float32(f)
		c.Model.Temperature = &t
	}
	if v := os.Getenv("MODEL_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MODEL_MAX_TOKENS: %w", err)
		}
		c.Model.MaxTokens = n
	}
	if v := os.Getenv("MODEL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MODEL_TIMEOUT: %w", err)
		}
		c.Model.Timeout = d
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FETCH_TIMEOUT: %w", err)
		}
		c.Fetch.Timeout = d
	}
	if v := os.Getenv("FETCH_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FETCH_MAX_BYTES: %w", err)
		}
		c.Fetch.MaxBytes = n
	}
	if v := os.Getenv("FETCH_ALLOW_PRIVATE_HOSTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FETCH_ALLOW_PRIVATE_HOSTS: %w", err)
		}
		c.Fetch.AllowPrivateHosts = b
	}
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORS.AllowOrigins = origins
	}
	return nil
}

// applyProviderDefaults fills base URL, model name and API key from the
// provider preset when they were not set explicitly.
func (c *Config) applyProviderDefaults() {
	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = providerBaseURLs[c.Model.Provider]
	}
	if c.Model.Name == "" {
		c.Model.Name = providerDefaultModels[c.Model.Provider]
	}
	if c.Model.APIKey == "" {
		if env, ok := providerKeyEnvs[c.Model.Provider]; ok {
			c.Model.APIKey = os.Getenv(env)
		}
	}
}

func (c *Config) Validate() error {
	if _, ok := providerBaseURLs[c.Model.Provider]; !ok {
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return errors.New("model name is empty")
	}
	if c.Model.APIKey == "" && c.Model.Provider != ProviderLMStudio {
		return fmt.Errorf("no API key for provider %s: set MODEL_API_KEY or %s",
			c.Model.Provider, providerKeyEnvs[c.Model.Provider])
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("model temperature %v is outside [0, 2]", *t)
	}
	if c.Model.Timeout <= 0 {
		return errors.New("model timeout must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.Fetch.MaxBytes <= 0 {
		return errors.New("fetch max bytes must be positive")
	}
	if c.Port == "" {
		return errors.New("port is empty")
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Port != "" {
		base.Port = override.Port
	}
	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		base.Log.Format = override.Log.Format
	}

	if override.Model.Provider != "" {
		base.Model.Provider = override.Model.Provider
	}
	if override.Model.BaseURL != "" {
		base.Model.BaseURL = override.Model.BaseURL
	}
	if override.Model.APIKey != "" {
		base.Model.APIKey = override.Model.APIKey
	}
	if override.Model.Name != "" {
		base.Model.Name = override.Model.Name
	}
	if override.Model.Temperature != nil {
		base.Model.Temperature = override.Model.Temperature
	}
	if override.Model.MaxTokens != 0 {
		base.Model.MaxTokens = override.Model.MaxTokens
	}
	if override.Model.Timeout != 0 {
		base.Model.Timeout = override.Model.Timeout
	}
	if override.Model.Referer != "" {
		base.Model.Referer = override.Model.Referer
	}
	if override.Model.AppTitle != "" {
		base.Model.AppTitle = override.Model.AppTitle
	}

	if override.Fetch.Timeout != 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.MaxBytes != 0 {
		base.Fetch.MaxBytes = override.Fetch.MaxBytes
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}
	if override.Fetch.AllowPrivateHosts {
		base.Fetch.AllowPrivateHosts = true
	}

	if len(override.CORS.AllowOrigins) > 0 {
		base.CORS.AllowOrigins = override.CORS.AllowOrigins
	}
	if override.Prompts != "" {
		base.Prompts = override.Prompts
	}
	if override.AdminToken != "" {
		base.AdminToken = override.AdminToken
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Port: "8080",
		Log:  LogConfig{Level: "info", Format: "text"},
		Model: ModelConfig{
			Provider:    ProviderOpenRouter,
			Temperature: ptr(float32(0.1)),
			MaxTokens:   2048,
			Timeout:     90 * time.Second,
			Referer:     "https://hoax-guard.local",
			AppTitle:    "Hoax Guard",
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			MaxBytes:  10 << 20,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		CORS: CORSConfig{AllowOrigins: []string{"*"}},
	}
}

func ptr[T any](v T) *T { return &v }
