package config

import "time"

const (
	DefaultPrompt = "Describe what you see and tell me where I am."

	DefaultSystemPrompt = "You are a helpful assistant for visually impaired users. " +
		"Provide clear, concise guidance based on camera input and user questions. " +
		"Be brief but informative, focusing on practical navigation help and environmental awareness. " +
		"Mention hazards first."

	DefaultTaskInstruction = "Please provide brief guidance to help this visually impaired user " +
		"navigate or understand their surroundings based on this information."
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8501,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			StaticDir:      "web",
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   48 << 20,
		},
		Staging: StagingConfig{
			Dir:           "data/frames",
			MaxAudioBytes: 25 << 20,
		},
		Security: SecurityConfig{
			MaxFileSize:       10 << 20,
			MaxPixels:         16777216,
			MaxWidth:          4096,
			MaxHeight:         4096,
			AllowedFormats:    []string{"jpeg", "jpg", "png", "webp", "gif"},
			EnableDeepScan:    true,
			ValidationTimeout: 10 * time.Second,
		},
		Selected: SelectedConfig{
			ASR:      "whisper",
			Detector: "yolo",
			VLLLM:    "openai",
		},
		ASR: map[string]ASRConfig{
			"whisper": {
				Type:      "openai",
				ModelName: "whisper-1",
				BaseURL:   "https://api.openai.com/v1",
			},
		},
		Detector: map[string]DetectorConfig{
			"yolo": {
				Type:    "http",
				BaseURL: "http://127.0.0.1:8600/detect",
				Model:   "yolov8n",
			},
		},
		VLLLM: map[string]VLLLMConfig{
			"openai": {
				Type:          "openai",
				ModelName:     "gpt-4o",
				BaseURL:       "https://api.openai.com/v1",
				Temperature:   0.3,
				MaxTokens:     300,
				TextMaxTokens: 150,
				TopP:          1,
			},
			"ollama": {
				Type:          "ollama",
				ModelName:     "llava",
				BaseURL:       "http://localhost:11434",
				Temperature:   0.3,
				MaxTokens:     300,
				TextMaxTokens: 150,
				TopP:          1,
			},
			"gemini": {
				Type:          "gemini",
				ModelName:     "gemini-1.5-flash",
				Temperature:   0.3,
				MaxTokens:     300,
				TextMaxTokens: 150,
				TopP:          1,
			},
		},
		Scene: SceneConfig{
			MinConfidence: 0.4,
			MaxObjects:    5,
			FrameWidth:    640,
			FrameHeight:   480,
			SmallArea:     10000,
			LargeArea:     40000,
		},
		Geolocation: GeolocationConfig{
			Providers: []GeoProviderConfig{
				{Name: "ipinfo", URL: "https://ipinfo.io/json", Timeout: 3 * time.Second},
				{Name: "ip-api", URL: "http://ip-api.com/json", Timeout: 3 * time.Second},
				{Name: "ipapi", URL: "https://ipapi.co/json/", Timeout: 3 * time.Second},
			},
			Cache: GeoCacheConfig{
				Driver: "memory",
				TTL:    10 * time.Minute,
				Redis: RedisConfig{
					Addr:   "127.0.0.1:6379",
					Prefix: "shravan:geo",
				},
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 3,
				OpenTimeout:         time.Minute,
			},
		},
		Pipeline: PipelineConfig{
			DefaultPrompt:        DefaultPrompt,
			SystemPrompt:         DefaultSystemPrompt,
			TaskInstruction:      DefaultTaskInstruction,
			TranscriptionTimeout: 30 * time.Second,
			DetectionTimeout:     15 * time.Second,
			ReasoningTimeout:     60 * time.Second,
		},
		Observability: ObservabilityConfig{
			Enabled: false,
			Metrics: true,
		},
	}
}
