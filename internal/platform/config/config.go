package config

import "time"

type Config struct {
	Server        ServerConfig              `yaml:"server"`
	Log           LogConfig                 `yaml:"log"`
	Web           WebConfig                 `yaml:"web"`
	Staging       StagingConfig             `yaml:"staging"`
	Security      SecurityConfig            `yaml:"security"`
	Selected      SelectedConfig            `yaml:"selected_module"`
	ASR           map[string]ASRConfig      `yaml:"ASR" validate:"dive"`
	Detector      map[string]DetectorConfig `yaml:"Detector" validate:"dive"`
	VLLLM         map[string]VLLLMConfig    `yaml:"VLLLM" validate:"dive"`
	Scene         SceneConfig               `yaml:"scene"`
	Geolocation   GeolocationConfig         `yaml:"geolocation"`
	Pipeline      PipelineConfig            `yaml:"pipeline"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

type LogConfig struct {
	Level string `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	StaticDir      string   `yaml:"static_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// MaxBodyBytes bounds the JSON body of /query, base64 included. It must
	// admit the largest image and audio together; see MinQueryBodyBytes.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"min=0"`
}

// StagingConfig controls where uploaded image and audio payloads are written
// while a request is in flight.
type StagingConfig struct {
	Dir           string `yaml:"dir" validate:"required"`
	MaxAudioBytes int64  `yaml:"max_audio_bytes" validate:"min=0"`
}

// SecurityConfig bounds what the image pipeline accepts.
type SecurityConfig struct {
	MaxFileSize       int64         `yaml:"max_file_size" validate:"min=0"`
	MaxPixels         int64         `yaml:"max_pixels" validate:"min=0"`
	MaxWidth          int           `yaml:"max_width" validate:"min=0"`
	MaxHeight         int           `yaml:"max_height" validate:"min=0"`
	AllowedFormats    []string      `yaml:"allowed_formats"`
	EnableDeepScan    bool          `yaml:"enable_deep_scan"`
	ValidationTimeout time.Duration `yaml:"validation_timeout"`
}

type SelectedConfig struct {
	ASR      string `yaml:"ASR" validate:"required"`
	Detector string `yaml:"Detector" validate:"required"`
	VLLLM    string `yaml:"VLLLM" validate:"required"`
}

type ASRConfig struct {
	Type      string `yaml:"type" validate:"required,oneof=openai"`
	ModelName string `yaml:"model_name"`
	BaseURL   string `yaml:"url" validate:"omitempty,url"`
	APIKey    string `yaml:"api_key"`
	Language  string `yaml:"language"`
}

type DetectorConfig struct {
	Type    string `yaml:"type" validate:"required,oneof=http"`
	BaseURL string `yaml:"url" validate:"required,url"`
	APIKey  string `yaml:"api_key"`
	// Model is forwarded to the inference sidecar, which may host several weights.
	Model string `yaml:"model"`
}

type VLLLMConfig struct {
	Type        string  `yaml:"type" validate:"required,oneof=openai ollama gemini"`
	ModelName   string  `yaml:"model_name" validate:"required"`
	BaseURL     string  `yaml:"url" validate:"omitempty,url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
	// MaxTokens applies when an image is attached, TextMaxTokens otherwise.
	MaxTokens     int     `yaml:"max_tokens" validate:"min=1"`
	TextMaxTokens int     `yaml:"text_max_tokens" validate:"min=0"`
	TopP          float64 `yaml:"top_p" validate:"min=0,max=1"`
}

// SceneConfig holds the detection threshold and the geometry used to bucket
// boxes into positions and sizes.
type SceneConfig struct {
	MinConfidence float64 `yaml:"min_confidence" validate:"min=0,max=1"`
	MaxObjects    int     `yaml:"max_objects" validate:"min=1"`
	FrameWidth    int     `yaml:"frame_width" validate:"min=1"`
	FrameHeight   int     `yaml:"frame_height" validate:"min=1"`
	SmallArea     float64 `yaml:"small_area" validate:"min=0"`
	LargeArea     float64 `yaml:"large_area" validate:"gtefield=SmallArea"`
}

type GeolocationConfig struct {
	Providers []GeoProviderConfig `yaml:"providers" validate:"dive"`
	Cache     GeoCacheConfig      `yaml:"cache"`
	Breaker   BreakerConfig       `yaml:"breaker"`
}

type GeoProviderConfig struct {
	Name    string        `yaml:"name" validate:"required"`
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

type GeoCacheConfig struct {
	Driver string        `yaml:"driver" validate:"omitempty,oneof=none memory redis"`
	TTL    time.Duration `yaml:"ttl" validate:"min=0"`
	Redis  RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// BreakerConfig configures the per-provider circuit breaker of the
// geolocation chain.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

type PipelineConfig struct {
	DefaultPrompt        string        `yaml:"default_prompt" validate:"required"`
	SystemPrompt         string        `yaml:"system_prompt" validate:"required"`
	TaskInstruction      string        `yaml:"task_instruction" validate:"required"`
	TranscriptionTimeout time.Duration `yaml:"transcription_timeout" validate:"min=0"`
	DetectionTimeout     time.Duration `yaml:"detection_timeout" validate:"min=0"`
	ReasoningTimeout     time.Duration `yaml:"reasoning_timeout" validate:"min=0"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
	Metrics bool `yaml:"metrics"`
}

// queryEnvelopeBytes covers the JSON keys, data URL prefixes and text that
// travel alongside the two base64 payloads.
const queryEnvelopeBytes = 1 << 20

// MinQueryBodyBytes is the smallest body limit that still accepts a /query
// carrying a max-size image and max-size audio, both base64 encoded.
func (c *Config) MinQueryBodyBytes() int64 {
	raw := c.Staging.MaxAudioBytes + c.Security.MaxFileSize
	return (raw+2)/3*4 + queryEnvelopeBytes
}
