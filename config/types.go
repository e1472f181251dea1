package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Vault       VaultConfig       `mapstructure:"vault"`
	QBittorrent QBittorrentConfig `mapstructure:"qbittorrent"`
	Speedtest   SpeedtestConfig   `mapstructure:"speedtest"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// DatabaseConfig points at the SQLite database file
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// VaultConfig points at the credential encryption key file
type VaultConfig struct {
	KeyPath string `mapstructure:"key_path"`
}

// QBittorrentConfig controls how remote instances are reached
type QBittorrentConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"`
	AllowSelfSignedCert bool          `mapstructure:"allow_self_signed_certs"`
}

// SpeedtestConfig controls the measurement process and pause polling
type SpeedtestConfig struct {
	Command      []string      `mapstructure:"command"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}
