package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load loads the configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".qbitweb"))
		}

		// Check /etc
		v.AddConfigPath("/etc/qbitweb/")
	}

	// Read config file; all settings have defaults, so a missing file is fine
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8181)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.session_ttl", "168h")

	// Storage defaults
	v.SetDefault("database.path", "qbitweb.db")
	v.SetDefault("vault.key_path", "qbitweb.key")

	// qBittorrent defaults
	v.SetDefault("qbittorrent.timeout", "30s")
	v.SetDefault("qbittorrent.session_ttl", "30m")
	v.SetDefault("qbittorrent.allow_self_signed_certs", false)

	// Speedtest defaults
	v.SetDefault("speedtest.command", []string{})
	v.SetDefault("speedtest.poll_interval", "500ms")
	v.SetDefault("speedtest.max_wait", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", cfg.Server.Port)
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if cfg.Vault.KeyPath == "" {
		return fmt.Errorf("vault.key_path is required")
	}

	if cfg.QBittorrent.SessionTTL <= 0 {
		return fmt.Errorf("qbittorrent.session_ttl must be positive")
	}

	if cfg.Speedtest.PollInterval <= 0 || cfg.Speedtest.MaxWait <= 0 {
		return fmt.Errorf("speedtest.poll_interval and speedtest.max_wait must be positive")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
