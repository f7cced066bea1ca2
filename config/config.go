package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every configuration parameter of the bot.
type Config struct {
	DatabaseURL  string
	DiscordToken string
	ServerPort   int

	GuildID        string
	RoleNewbieID   string
	RoleMemberID   string
	RoleSageID     string
	ChannelWelcome string
	ChannelGeneral string
	ChannelSage    string

	CharterURL   string
	PublicMapURL string
	SiteURL      string

	WorkerJWTSecret string

	NominatimBaseURL   string
	NominatimUserAgent string
	GeocodeTimeout     time.Duration

	TimeoutLanguageSelect time.Duration
	TimeoutCharterRead    time.Duration
	TimeoutPlayerInput    time.Duration
	TimeoutLocationInput  time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN environment variable is not set")
	}

	jwtSecret := os.Getenv("WORKER_JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("WORKER_JWT_SECRET environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		DiscordToken: token,
		ServerPort:   port,

		GuildID:        os.Getenv("GUILD_ID"),
		RoleNewbieID:   os.Getenv("ROLE_NEWBIE_ID"),
		RoleMemberID:   os.Getenv("ROLE_MEMBER_ID"),
		RoleSageID:     os.Getenv("ROLE_SAGE_ID"),
		ChannelWelcome: os.Getenv("CHANNEL_WELCOME_ID"),
		ChannelGeneral: os.Getenv("CHANNEL_GENERAL_ID"),
		ChannelSage:    os.Getenv("CHANNEL_SAGE_ID"),

		CharterURL:   os.Getenv("CHARTER_URL"),
		PublicMapURL: os.Getenv("PUBLIC_MAP_URL"),
		SiteURL:      os.Getenv("SITE_URL"),

		WorkerJWTSecret: jwtSecret,

		NominatimBaseURL:   envOrDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: envOrDefault("NOMINATIM_USER_AGENT", "community-bot-this-is-psg"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	if cfg.GeocodeTimeout, err = secondsEnv("TIMEOUT_GEOCODING", 10); err != nil {
		return nil, err
	}
	if cfg.TimeoutLanguageSelect, err = secondsEnv("TIMEOUT_LANGUAGE_SELECT", 300); err != nil {
		return nil, err
	}
	if cfg.TimeoutCharterRead, err = secondsEnv("TIMEOUT_CHARTER_READ", 600); err != nil {
		return nil, err
	}
	if cfg.TimeoutPlayerInput, err = secondsEnv("TIMEOUT_PLAYER_INPUT", 120); err != nil {
		return nil, err
	}
	if cfg.TimeoutLocationInput, err = secondsEnv("TIMEOUT_LOCATION_INPUT", 120); err != nil {
		return nil, err
	}

	return cfg, nil
}

// R2Enabled reports whether object storage publication is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func secondsEnv(key string, fallback int) (time.Duration, error) {
	v, err := intEnv(key, fallback)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return time.Duration(v) * time.Second, nil
}
