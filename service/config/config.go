package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

type Config struct {
	Port           int
	APIKey         string
	VerboseLogging bool
	RateLimit      int

	// AppURL is the web application the embedded webview loads; the
	// connectivity probe targets its host.
	AppURL           string
	ConnectivityHost string
	ConnectivityPort int

	TelegramBotToken string
	TelegramChatID   string

	StoragePath string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		APIKey:         os.Getenv("API_KEY"),
		VerboseLogging: getEnvBool("VERBOSE_LOGGING", false),
		RateLimit:      getEnvInt("RATE_LIMIT", 100),

		AppURL: getEnvString("APP_URL", "https://app.example.com"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		StoragePath: getEnvString("STORAGE_PATH", "./data/beacon.db"),
	}

	host, port, err := splitAppURL(cfg.AppURL)
	if err != nil {
		return nil, err
	}
	cfg.ConnectivityHost = getEnvString("CONNECTIVITY_HOST", host)
	cfg.ConnectivityPort = getEnvInt("CONNECTIVITY_PORT", port)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY environment variable is required")
	}
	return nil
}

func (c *Config) IsTelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

func splitAppURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", 0, fmt.Errorf("invalid APP_URL %q", raw)
	}

	port := 443
	if u.Scheme == "http" {
		port = 80
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	return u.Hostname(), port, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
