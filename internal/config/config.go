package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every tunable of the service.
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Transcribe TranscribeConfig
	Synthesize SynthesizeConfig
	Room       RoomConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Context    ContextConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}
	transcribe, err := loadTranscribeConfig()
	if err != nil {
		return nil, err
	}
	synthesize, err := loadSynthesizeConfig()
	if err != nil {
		return nil, err
	}
	room, err := loadRoomConfig()
	if err != nil {
		return nil, err
	}
	contextCfg, err := loadContextConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Transcribe: transcribe,
		Synthesize: synthesize,
		Room:       room,
		Postgres:   PostgresConfig{DSN: strings.TrimSpace(os.Getenv("POSTGRES_DSN"))},
		Redis:      RedisConfig{Addr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"), Password: os.Getenv("REDIS_PASSWORD")},
		Context:    contextCfg,
	}, nil
}

// ValidatePipeline checks every credential the live pipeline needs and
// reports all missing variables in a single error, so a misconfigured
// deployment fails fast before any room resource is created.
func (c *Config) ValidatePipeline() error {
	var missing []string
	if !c.AI.Enabled() {
		missing = append(missing, "ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) + ARK_MODEL (reasoning)")
	}
	if c.Transcribe.APIKey == "" {
		missing = append(missing, "TRANSCRIBE_API_KEY (streaming transcription)")
	}
	if c.Synthesize.APIKey == "" {
		missing = append(missing, "SYNTHESIZE_API_KEY (speech synthesis)")
	}
	if c.Room.APIKey == "" {
		missing = append(missing, "ROOM_API_KEY (WebRTC room provider)")
	}
	if len(missing) == 0 {
		return nil
	}
	errs := make([]error, 0, len(missing))
	for _, m := range missing {
		errs = append(errs, fmt.Errorf("missing %s", m))
	}
	return fmt.Errorf("voice pipeline configuration incomplete: %w", errors.Join(errs...))
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the reasoning model backend.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the required reasoning credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a chat model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("reasoning model credentials missing: provide ARK_API_KEY + ARK_MODEL or AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}
	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// TranscribeConfig describes the streaming transcription service.
type TranscribeConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
	SampleRate int
	// SilenceTimeout closes a turn when no further speech arrives.
	SilenceTimeout time.Duration
}

func loadTranscribeConfig() (TranscribeConfig, error) {
	silence, err := parseOptionalIntEnv("TRANSCRIBE_SILENCE_TIMEOUT_MS")
	if err != nil {
		return TranscribeConfig{}, err
	}
	silenceTimeout := 800 * time.Millisecond
	if silence != nil {
		silenceTimeout = time.Duration(*silence) * time.Millisecond
	}
	rate, err := parseOptionalIntEnv("TRANSCRIBE_SAMPLE_RATE")
	if err != nil {
		return TranscribeConfig{}, err
	}
	sampleRate := 16000
	if rate != nil {
		sampleRate = *rate
	}

	return TranscribeConfig{
		APIKey:         strings.TrimSpace(os.Getenv("TRANSCRIBE_API_KEY")),
		BaseURL:        getEnvOrDefault("TRANSCRIBE_BASE_URL", "wss://api.deepgram.com/v1/listen"),
		Model:          getEnvOrDefault("TRANSCRIBE_MODEL", "nova-2"),
		Language:       getEnvOrDefault("TRANSCRIBE_LANGUAGE", "vi"),
		SampleRate:     sampleRate,
		SilenceTimeout: silenceTimeout,
	}, nil
}

// SynthesizeConfig describes the speech synthesis service.
type SynthesizeConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	Model   string
}

func loadSynthesizeConfig() (SynthesizeConfig, error) {
	return SynthesizeConfig{
		APIKey:  strings.TrimSpace(os.Getenv("SYNTHESIZE_API_KEY")),
		BaseURL: getEnvOrDefault("SYNTHESIZE_BASE_URL", "wss://api.elevenlabs.io/v1/text-to-speech"),
		VoiceID: getEnvOrDefault("SYNTHESIZE_VOICE_ID", "aria"),
		Model:   getEnvOrDefault("SYNTHESIZE_MODEL", "eleven_turbo_v2_5"),
	}, nil
}

// RoomConfig describes the WebRTC room provider.
type RoomConfig struct {
	APIKey  string
	BaseURL string
	// Expiry bounds the lifetime of every created room.
	Expiry time.Duration
}

func loadRoomConfig() (RoomConfig, error) {
	expiry, err := parseOptionalIntEnv("ROOM_EXPIRY_SECONDS")
	if err != nil {
		return RoomConfig{}, err
	}
	roomExpiry := 2 * time.Hour
	if expiry != nil {
		roomExpiry = time.Duration(*expiry) * time.Second
	}
	return RoomConfig{
		APIKey:  strings.TrimSpace(os.Getenv("ROOM_API_KEY")),
		BaseURL: getEnvOrDefault("ROOM_BASE_URL", "https://api.daily.co/v1"),
		Expiry:  roomExpiry,
	}, nil
}

// PostgresConfig describes the durable store connection.
type PostgresConfig struct {
	DSN string
}

// RedisConfig describes the context cache store.
type RedisConfig struct {
	Addr     string
	Password string
}

// ContextConfig tunes the cross-session context cache.
type ContextConfig struct {
	TokenBudget         int
	TTL                 time.Duration
	RecentConversations int
}

func loadContextConfig() (ContextConfig, error) {
	budget, err := parseOptionalIntEnv("CONTEXT_TOKEN_BUDGET")
	if err != nil {
		return ContextConfig{}, err
	}
	tokenBudget := 500
	if budget != nil {
		tokenBudget = *budget
	}

	ttl, err := parseOptionalIntEnv("CONTEXT_TTL_SECONDS")
	if err != nil {
		return ContextConfig{}, err
	}
	cacheTTL := 1800 * time.Second
	if ttl != nil {
		cacheTTL = time.Duration(*ttl) * time.Second
	}

	recent, err := parseOptionalIntEnv("CONTEXT_RECENT_CONVERSATIONS")
	if err != nil {
		return ContextConfig{}, err
	}
	recentLimit := 5
	if recent != nil {
		recentLimit = *recent
	}

	return ContextConfig{
		TokenBudget:         tokenBudget,
		TTL:                 cacheTTL,
		RecentConversations: recentLimit,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
