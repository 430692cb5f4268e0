package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Discord Bot
	DiscordToken   string
	StaffChannelID string

	// Discord OAuth2
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Database (empty: in-memory store)
	DatabaseURL string

	// Web Server
	WebBind            string
	WebUIBaseURL       string
	PublicBaseURL      string
	RateLimitPerMinute int64

	// Session
	JWTSecret string

	// Events
	RabbitMQURL string

	// Payments
	MidtransServerKey  string
	MidtransProduction bool

	// Pending divisions
	PendingTTL     time.Duration
	ExpiryInterval time.Duration

	SeedFile string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		StaffChannelID:      os.Getenv("STAFF_CHANNEL_ID"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		WebBind:             getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		DiscordClientID:     os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURI:  getEnvDefault("DISCORD_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		MidtransServerKey:   os.Getenv("MIDTRANS_SERVER_KEY"),
		SeedFile:            os.Getenv("SEED_FILE"),
	}

	// Extract base URL from redirect URI
	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)
	cfg.PublicBaseURL = getEnvDefault("PUBLIC_BASE_URL", cfg.WebUIBaseURL)

	var err error
	if cfg.MidtransProduction, err = getEnvBool("MIDTRANS_PRODUCTION", false); err != nil {
		return nil, err
	}
	if cfg.PendingTTL, err = getEnvDuration("PENDING_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ExpiryInterval, err = getEnvDuration("EXPIRY_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}

	if cfg.DiscordToken != "" && cfg.StaffChannelID == "" {
		return nil, fmt.Errorf("STAFF_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	if (cfg.DiscordClientID == "") != (cfg.DiscordClientSecret == "") {
		return nil, fmt.Errorf("DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET must be set together")
	}
	if cfg.StaffLoginEnabled() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when staff login is enabled")
	}
	if cfg.PendingTTL <= 0 {
		return nil, fmt.Errorf("PENDING_TTL must be positive")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	return cfg, nil
}

// StaffLoginEnabled reports whether Discord OAuth2 is configured.
func (c *Config) StaffLoginEnabled() bool {
	return c.DiscordClientID != "" && c.DiscordClientSecret != ""
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
