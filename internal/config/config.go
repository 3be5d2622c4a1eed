package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Engine backends
const (
	BackendExec = "exec"
	BackendGRPC = "grpc"
	BackendMock = "mock"
)

// Config holds all configuration for the TTS gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"9009"`

	// Directory served at / for the browser demo client. Optional.
	StaticDir string `envconfig:"STATIC_DIR" default:""`

	// Voice selection
	Language string `envconfig:"LANGUAGE" default:"EN"`    // Model language (EN, ZH_MIX_EN, ...)
	Speaker  string `envconfig:"SPEAKER" default:"EN-AU"` // Speaker name resolved through the engine's speaker map

	// Inference engine
	EngineBackend     string `envconfig:"ENGINE_BACKEND" default:"exec"`    // exec, grpc, mock
	EngineCommand     string `envconfig:"ENGINE_COMMAND" default:""`        // Worker command line for the exec backend
	EngineAddr        string `envconfig:"ENGINE_ADDR" default:""`           // host:port for the grpc backend
	EngineTimeout     int    `envconfig:"ENGINE_TIMEOUT" default:"60"`      // Per-call timeout in seconds
	EngineConcurrency int    `envconfig:"ENGINE_CONCURRENCY" default:"1"`   // Concurrent inference calls across sessions
	FeatureCacheSize  int    `envconfig:"FEATURE_CACHE_SIZE" default:"512"` // Cached sentences; 0 disables

	// Synthesis hyperparameters
	SDPRatio      float64 `envconfig:"SDP_RATIO" default:"0.2"`
	NoiseScale    float64 `envconfig:"NOISE_SCALE" default:"0.6"`
	NoiseScaleW   float64 `envconfig:"NOISE_SCALE_W" default:"0.8"`
	Speed         float64 `envconfig:"SPEED" default:"1.0"`
	SentencePause float64 `envconfig:"SENTENCE_PAUSE" default:"0.05"` // Seconds of silence between sentences (batch path)

	// Session configuration
	SessionQueueSize     int      `envconfig:"SESSION_QUEUE_SIZE" default:"8"`       // Texts queued behind the current utterance
	WriteTimeout         int      `envconfig:"WRITE_TIMEOUT" default:"10"`           // Seconds per websocket write
	MaxMessageSize       int      `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`     // Largest accepted text message in bytes
	ConnectRatePerMinute int      `envconfig:"CONNECT_RATE_PER_MINUTE" default:"60"` // Websocket upgrades per client IP; 0 disables
	ConnectBurst         int      `envconfig:"CONNECT_BURST" default:"10"`
	TrustedProxies       []string `envconfig:"TRUSTED_PROXIES"` // CIDRs or IPs whose X-Forwarded-For is honored

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Startup dial attempts for the grpc backend
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Worker restart attempts for the exec backend
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Restart backoff in milliseconds

	// Observability configuration
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`        // Log level: debug, info, warn, error
	LogPretty       bool   `envconfig:"LOG_PRETTY" default:"false"`      // Pretty print logs (for development)
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"true"`  // Enable Prometheus metrics
	TracingExporter string `envconfig:"TRACING_EXPORTER" default:"none"` // none, stdout, otlp
	OTLPEndpoint    string `envconfig:"OTLP_ENDPOINT" default:""`
	OTLPInsecure    bool   `envconfig:"OTLP_INSECURE" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
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

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	c.EngineBackend = strings.ToLower(strings.TrimSpace(c.EngineBackend))
	switch c.EngineBackend {
	case BackendExec:
		if strings.TrimSpace(c.EngineCommand) == "" {
			return fmt.Errorf("ENGINE_COMMAND is required for the exec backend")
		}
	case BackendGRPC:
		if strings.TrimSpace(c.EngineAddr) == "" {
			return fmt.Errorf("ENGINE_ADDR is required for the grpc backend")
		}
	case BackendMock:
	default:
		return fmt.Errorf("unknown ENGINE_BACKEND %q", c.EngineBackend)
	}

	if c.Speed <= 0 {
		return fmt.Errorf("SPEED must be positive, got %v", c.Speed)
	}
	if c.SentencePause < 0 {
		return fmt.Errorf("SENTENCE_PAUSE must not be negative, got %v", c.SentencePause)
	}
	if c.EngineConcurrency < 1 {
		return fmt.Errorf("ENGINE_CONCURRENCY must be at least 1, got %d", c.EngineConcurrency)
	}
	if c.SessionQueueSize < 1 {
		return fmt.Errorf("SESSION_QUEUE_SIZE must be at least 1, got %d", c.SessionQueueSize)
	}
	return nil
}

// Hyperparameters returns the configured synthesis hyperparameters
func (c *Config) Hyperparameters() speech.Hyperparameters {
	return speech.Hyperparameters{
		SDPRatio:    c.SDPRatio,
		NoiseScale:  c.NoiseScale,
		NoiseScaleW: c.NoiseScaleW,
		Speed:       c.Speed,
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
