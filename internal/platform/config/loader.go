package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit path is given.
const DefaultPath = "config.yaml"

// envPrefix namespaces overrides, e.g. SHRAVAN_PORT. The API keys also accept
// their conventional unprefixed names such as OPENAI_API_KEY.
const envPrefix = "shravan"

var validate = validator.New()

// envOverrides lists the settings deployments usually set through the environment.
type envOverrides struct {
	Port         int    `split_words:"true"`
	LogLevel     string `split_words:"true"`
	StaticDir    string `split_words:"true"`
	StagingDir   string `split_words:"true"`
	VLLLM        string
	DetectorURL  string `split_words:"true"`
	RedisAddr    string `split_words:"true"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
}

// Loader reads YAML on top of DefaultConfig, then applies .env and
// environment overrides, then validates.
type Loader struct {
	path      string
	useDotEnv bool
}

func NewLoader(path string) *Loader {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Loader{path: path, useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	// Path is empty when the file was absent and defaults were used.
	Path string
}

func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	path := l.path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		path = ""
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.StaticDir != "" {
		cfg.Web.StaticDir = env.StaticDir
	}
	if env.StagingDir != "" {
		cfg.Staging.Dir = env.StagingDir
	}
	if env.VLLLM != "" {
		cfg.Selected.VLLLM = env.VLLLM
	}
	if env.DetectorURL != "" {
		if det, ok := cfg.Detector[cfg.Selected.Detector]; ok {
			det.BaseURL = env.DetectorURL
			cfg.Detector[cfg.Selected.Detector] = det
		}
	}
	if env.RedisAddr != "" {
		cfg.Geolocation.Cache.Redis.Addr = env.RedisAddr
	}

	for name, asr := range cfg.ASR {
		if asr.APIKey == "" && asr.Type == "openai" {
			asr.APIKey = env.OpenAIAPIKey
			cfg.ASR[name] = asr
		}
	}
	for name, vl := range cfg.VLLLM {
		if vl.APIKey != "" {
			continue
		}
		switch vl.Type {
		case "openai":
			vl.APIKey = env.OpenAIAPIKey
		case "gemini":
			vl.APIKey = env.GeminiAPIKey
		}
		cfg.VLLLM[name] = vl
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, ok := cfg.ASR[cfg.Selected.ASR]; !ok {
		return fmt.Errorf("selected ASR %q is not configured", cfg.Selected.ASR)
	}
	if _, ok := cfg.Detector[cfg.Selected.Detector]; !ok {
		return fmt.Errorf("selected detector %q is not configured", cfg.Selected.Detector)
	}
	if _, ok := cfg.VLLLM[cfg.Selected.VLLLM]; !ok {
		return fmt.Errorf("selected VLLLM %q is not configured", cfg.Selected.VLLLM)
	}
	if cfg.Web.MaxBodyBytes > 0 && cfg.Staging.MaxAudioBytes > 0 && cfg.Security.MaxFileSize > 0 {
		if need := cfg.MinQueryBodyBytes(); cfg.Web.MaxBodyBytes < need {
			return fmt.Errorf("web.max_body_bytes %d cannot carry max_audio_bytes plus max_file_size as base64; need at least %d",
				cfg.Web.MaxBodyBytes, need)
		}
	}
	if cfg.Geolocation.Cache.Driver == "redis" && cfg.Geolocation.Cache.Redis.Addr == "" {
		return errors.New("geolocation cache driver redis requires redis.addr")
	}
	return nil
}
