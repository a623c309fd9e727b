package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server needs at construction time. It is
// built once in main and passed down explicitly; no package keeps ambient
// global state.
type Config struct {
	Port        string
	DBPath      string
	JWTSecret   string
	FrontendURL string

	// Microsoft OAuth. RedirectURI is the single source of truth for the
	// redirect target: the same value must be embedded in the authorization
	// URL and sent to the token endpoint, or Microsoft rejects the exchange.
	MSClientID     string
	MSClientSecret string
	MSTenant       string
	RedirectURI    string
	OAuthScopes    []string

	// Google OAuth (optional second provider).
	GoogleClientID     string
	GoogleClientSecret string

	NATSURL string

	StateTTL        time.Duration
	ProviderTimeout time.Duration
	SyncBatchSize   int
}

// Load reads configuration from the environment, loading a .env file first
// when one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "data/postadepo.db"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		MSClientID:     os.Getenv("MS_CLIENT_ID"),
		MSClientSecret: os.Getenv("MS_CLIENT_SECRET"),
		MSTenant:       getEnv("MS_TENANT", "common"),
		RedirectURI:    os.Getenv("OAUTH_REDIRECT_URI"),
		OAuthScopes: splitScopes(getEnv("OAUTH_SCOPES",
			"openid profile email offline_access https://graph.microsoft.com/Mail.Read")),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),

		NATSURL: os.Getenv("NATS_URL"),

		StateTTL:        getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		SyncBatchSize:   getEnvInt("SYNC_BATCH_SIZE", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the server cannot run without. Provider
// credentials are deliberately not required here: when they are missing the
// Outlook integration reports itself unavailable instead of failing startup.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	return nil
}

// OutlookConfigured reports whether the Microsoft OAuth settings are complete.
func (c *Config) OutlookConfigured() bool {
	return c.MSClientID != "" && c.MSClientSecret != "" && c.RedirectURI != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func splitScopes(raw string) []string {
	return strings.Fields(raw)
}
