package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice reply service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""` // Empty disables the gRPC health listener
	MaxUploadBytes int64  `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`
	RateLimitRPM   int    `envconfig:"RATE_LIMIT_RPM" default:"30"` // Processing requests per minute per client IP

	// Speech-to-text configuration
	STTProvider    string `envconfig:"STT_PROVIDER" default:"whisper"` // whisper, deepgram
	WhisperBaseURL string `envconfig:"WHISPER_BASE_URL" default:"http://localhost:8178/v1"`
	WhisperModel   string `envconfig:"WHISPER_MODEL" default:"base"`
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	STTTimeout     int    `envconfig:"STT_TIMEOUT" default:"120"` // seconds

	// Chat completion configuration (Groq, OpenAI-compatible)
	ChatAPIKey  string `envconfig:"GROQ_API_KEY" required:"true"`
	ChatBaseURL string `envconfig:"CHAT_BASE_URL" default:"https://api.groq.com/openai/v1"`
	ChatModel   string `envconfig:"CHAT_MODEL" default:"llama3-70b-8192"`
	ChatTimeout int    `envconfig:"CHAT_TIMEOUT" default:"60"` // seconds

	// Text-to-speech configuration
	TTSProvider    string `envconfig:"TTS_PROVIDER" default:"gtts"` // gtts, openai
	GTTSHost       string `envconfig:"GTTS_HOST" default:"https://translate.google.com"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAITTSModel string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAITTSVoice string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`
	TTSTimeout     int    `envconfig:"TTS_TIMEOUT" default:"60"` // seconds

	// Artifact storage
	OutputDir              string `envconfig:"OUTPUT_DIR" default:"."`
	RetentionTTL           int    `envconfig:"RETENTION_TTL" default:"3600"`           // seconds
	RetentionSweepInterval int    `envconfig:"RETENTION_SWEEP_INTERVAL" default:"300"` // seconds
	RetentionMaxFiles      int    `envconfig:"RETENTION_MAX_FILES" default:"500"`      // 0 disables the count bound

	// Optional S3-compatible mirror for generated audio
	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:""`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" default:""`
	S3Bucket    string `envconfig:"S3_BUCKET" default:""`
	S3Region    string `envconfig:"S3_REGION" default:""`
	S3Secure    bool   `envconfig:"S3_SECURE" default:"true"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Attempts per chat/TTS call, including the first
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"250"`        // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"10"`        // Startup probes of the STT backend
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`   // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"` // Console output for development
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required and provider-specific settings.
func (c *Config) Validate() error {
	if c.ChatAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}

	switch c.STTProvider {
	case "whisper":
		if c.WhisperBaseURL == "" {
			return fmt.Errorf("WHISPER_BASE_URL is required when STT_PROVIDER=whisper")
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TTSProvider {
	case "gtts":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TTS_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3Bucket == "") {
		return fmt.Errorf("S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET are required when S3_ENDPOINT is set")
	}

	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// S3Enabled reports whether generated audio is mirrored to object storage.
func (c *Config) S3Enabled() bool {
	return c.S3Endpoint != ""
}

// RetryMaxBackoff caps the wait between chat and TTS attempts.
const RetryMaxBackoff = 5 * time.Second

// responseMargin covers upload spooling, storage and writing the response.
const responseMargin = 30 * time.Second

// PipelineTimeout is the longest a request may take when every stage uses
// its full timeout on every attempt. Speech recognition runs once; chat and
// synthesis run up to RetryMaxAttempts times with a capped backoff between.
func (c *Config) PipelineTimeout() time.Duration {
	attempts := c.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retried := time.Duration(attempts) * (c.ChatTimeoutDuration() + c.TTSTimeoutDuration())
	backoff := 2 * time.Duration(attempts-1) * RetryMaxBackoff
	return c.STTTimeoutDuration() + retried + backoff + responseMargin
}

func (c *Config) STTTimeoutDuration() time.Duration {
	return time.Duration(c.STTTimeout) * time.Second
}

func (c *Config) ChatTimeoutDuration() time.Duration {
	return time.Duration(c.ChatTimeout) * time.Second
}

func (c *Config) TTSTimeoutDuration() time.Duration {
	return time.Duration(c.TTSTimeout) * time.Second
}
