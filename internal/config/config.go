package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"imageselector/internal/logger"
)

// Embedding providers accepted in EMBEDDING_PROVIDER.
const (
	ProviderAuto        = "auto"
	ProviderGemini      = "gemini"
	ProviderHuggingFace = "huggingface"
	ProviderNone        = "none"
)

const (
	DefaultPort             = "5000"
	DefaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultHuggingFaceURL   = "https://router.huggingface.co/hf-inference"
	DefaultGeminiModel      = "text-embedding-004"
	MaxSearchResults        = 10
)

var ErrUnknownProvider = errors.New("unknown embedding provider")

type Config struct {
	Port string

	GoogleAPIKey    string
	GoogleCX        string
	SearchTimeout   time.Duration
	SearchResults   int
	SearchImageType string
	SearchSafe      string
	FilterLinks     bool

	Provider         string
	GeminiAPIKey     string
	GeminiModel      string
	HuggingFaceKey   string
	HuggingFaceModel string
	HuggingFaceURL   string
	EmbeddingTimeout time.Duration

	AllowedOrigins  []string
	RateLimitPerMin int
	RateLimitBurst  int

	Debug bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		Port:             get("PORT", DefaultPort),
		GoogleAPIKey:     get("GOOGLE_API_KEY", ""),
		GoogleCX:         get("GOOGLE_CX", ""),
		SearchImageType:  get("SEARCH_IMAGE_TYPE", "photo"),
		SearchSafe:       get("SEARCH_SAFE", ""),
		Provider:         strings.ToLower(get("EMBEDDING_PROVIDER", ProviderAuto)),
		GeminiAPIKey:     get("GEMINI_API_KEY", ""),
		GeminiModel:      get("GEMINI_EMBEDDING_MODEL", DefaultGeminiModel),
		HuggingFaceKey:   get("HUGGING_FACE_API_KEY", ""),
		HuggingFaceModel: get("HUGGING_FACE_MODEL", DefaultHuggingFaceModel),
		HuggingFaceURL:   strings.TrimRight(get("HUGGING_FACE_URL", DefaultHuggingFaceURL), "/"),
		AllowedOrigins:   splitList(get("CORS_ALLOWED_ORIGINS", "*")),
	}
	var err error
	if cfg.Debug, err = logger.DebugEnabled(lookup("DEBUG")); err != nil {
		return nil, fmt.Errorf("DEBUG: %w", err)
	}
	if cfg.SearchTimeout, err = parseDuration(get("SEARCH_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("SEARCH_TIMEOUT: %w", err)
	}
	if cfg.EmbeddingTimeout, err = parseDuration(get("EMBEDDING_TIMEOUT", "30s")); err != nil {
		return nil, fmt.Errorf("EMBEDDING_TIMEOUT: %w", err)
	}
	if cfg.SearchResults, err = strconv.Atoi(get("SEARCH_RESULTS", strconv.Itoa(MaxSearchResults))); err != nil {
		return nil, fmt.Errorf("SEARCH_RESULTS: %w", err)
	}
	if cfg.SearchResults <= 0 || cfg.SearchResults > MaxSearchResults {
		cfg.SearchResults = MaxSearchResults
	}
	if cfg.FilterLinks, err = strconv.ParseBool(get("FILTER_IMAGE_LINKS", "true")); err != nil {
		return nil, fmt.Errorf("FILTER_IMAGE_LINKS: %w", err)
	}
	if cfg.RateLimitPerMin, err = strconv.Atoi(get("RATE_LIMIT_PER_MIN", "0")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MIN: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(get("RATE_LIMIT_BURST", "10")); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}

	switch cfg.Provider {
	case ProviderAuto, ProviderGemini, ProviderHuggingFace, ProviderNone:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	return cfg, nil
}

// HasSearchCredentials reports whether both Custom Search credentials are set.
func (c *Config) HasSearchCredentials() bool {
	return c.GoogleAPIKey != "" && c.GoogleCX != ""
}

// EmbeddingProvider resolves "auto" to a concrete provider. An explicitly
// requested provider without its key resolves to none.
func (c *Config) EmbeddingProvider() string {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey != "" {
			return ProviderGemini
		}
	case ProviderHuggingFace:
		if c.HuggingFaceKey != "" {
			return ProviderHuggingFace
		}
	case ProviderAuto:
		return firstNonEmpty(
			ifSet(c.GeminiAPIKey, ProviderGemini),
			ifSet(c.HuggingFaceKey, ProviderHuggingFace),
			ProviderNone,
		)
	}
	return ProviderNone
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

func parseDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ifSet(key, value string) string {
	if key == "" {
		return ""
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
