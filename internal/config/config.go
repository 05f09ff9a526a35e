package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for pilltrack
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Advisory  AdvisoryConfig  `mapstructure:"advisory"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// AdvisoryConfig holds drug-interaction advisory service settings
type AdvisoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"`
}

// RemindersConfig holds dose-reminder settings
type RemindersConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Adaptive        bool           `mapstructure:"adaptive"`
	RefillCheckTime string         `mapstructure:"refill_check_time"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds the optional Telegram reminder channel settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// SecurityConfig holds API security settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	Password     string   `mapstructure:"password"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "pilltrack.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "snapshots"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "pilltrack.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (PILLTRACK_SERVER_PORT, PILLTRACK_ADVISORY_API_KEY, etc.)
	v.SetEnvPrefix("PILLTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("advisory.enabled", true)
	v.SetDefault("advisory.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("advisory.model", "gemini-2.0-flash")
	v.SetDefault("advisory.timeout", 30)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.adaptive", true)
	v.SetDefault("reminders.refill_check_time", "09:00")

	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pilltrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "pilltrack")
}

// loadEnvOverrides loads specific env vars that Viper doesn't handle well with nested structs
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Advisory.APIKey = getEnv("PILLTRACK_ADVISORY_API_KEY", cfg.Advisory.APIKey)
	cfg.Advisory.BaseURL = getEnv("PILLTRACK_ADVISORY_BASE_URL", cfg.Advisory.BaseURL)
	cfg.Advisory.Model = getEnv("PILLTRACK_ADVISORY_MODEL", cfg.Advisory.Model)

	cfg.Server.Address = getEnv("PILLTRACK_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("PILLTRACK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Storage.DataDir = getEnv("PILLTRACK_STORAGE_DATA_DIR", cfg.Storage.DataDir)

	cfg.Security.JWTSecret = getEnv("PILLTRACK_SECURITY_JWT_SECRET", cfg.Security.JWTSecret)
	cfg.Security.Password = getEnv("PILLTRACK_SECURITY_PASSWORD", cfg.Security.Password)

	cfg.Reminders.Telegram.BotToken = getEnv("PILLTRACK_REMINDERS_TELEGRAM_BOT_TOKEN", cfg.Reminders.Telegram.BotToken)
	if chatID := os.Getenv("PILLTRACK_REMINDERS_TELEGRAM_CHAT_ID"); chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Reminders.Telegram.ChatID = id
		}
	}
}

func validate(cfg *Config) error {
	// The advisory service degrades to "no data" without a key, so a missing
	// key disables it rather than failing startup.
	if cfg.Advisory.Enabled && cfg.Advisory.APIKey == "" {
		cfg.Advisory.Enabled = false
	}

	if t := cfg.Reminders.RefillCheckTime; t != "" {
		parts := strings.Split(t, ":")
		if len(parts) != 2 {
			return fmt.Errorf("reminders.refill_check_time must be HH:MM, got %q", t)
		}
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return fmt.Errorf("reminders.refill_check_time must be HH:MM, got %q", t)
		}
	}

	if cfg.Reminders.Telegram.Enabled && cfg.Reminders.Telegram.BotToken == "" {
		return fmt.Errorf("reminders.telegram.bot_token is required when telegram reminders are enabled")
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return strings.Repeat("0", n)
	}
	return hex.EncodeToString(b)[:n]
}
