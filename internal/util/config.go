// Package util provides common utilities for honeypulse.
package util

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level" default:"info"`
	LogFile  string `mapstructure:"log_file"`

	// Capture settings
	LogDir          string            `mapstructure:"log_dir"`
	BindAddress     string            `mapstructure:"bind_address" default:"0.0.0.0"`
	Ports           []int             `mapstructure:"ports" default:"[21,22,80,443]"`
	Banners         map[string]string `mapstructure:"banners" default:"{}"`
	IdleTimeout     time.Duration     `mapstructure:"idle_timeout"`
	MaxConnsPerPort int               `mapstructure:"max_conns_per_port"`

	// Analysis settings
	AnalysisInterval  time.Duration `mapstructure:"analysis_interval" default:"15m"`
	TopN              int           `mapstructure:"top_n" default:"10"`
	PayloadDisplayLen int           `mapstructure:"payload_display_len" default:"50"`

	// Web server
	WebPort  int    `mapstructure:"web_port" default:"5000"`
	GeoIPURL string `mapstructure:"geoip_url" default:"http://ip-api.com/json/"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".honeypulse")

	cfg := &Config{
		DataDir: dataDir,
		LogFile: filepath.Join(dataDir, "honeypulse.log"),
		LogDir:  filepath.Join(dataDir, "honeypot_logs"),
	}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	// Ensure config directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(cfg.DataDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("HONEYPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults in viper
	viper.SetDefault("data_dir", cfg.DataDir)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("log_file", cfg.LogFile)
	viper.SetDefault("log_dir", cfg.LogDir)
	viper.SetDefault("bind_address", cfg.BindAddress)
	viper.SetDefault("ports", cfg.Ports)
	viper.SetDefault("idle_timeout", cfg.IdleTimeout)
	viper.SetDefault("max_conns_per_port", cfg.MaxConnsPerPort)
	viper.SetDefault("analysis_interval", cfg.AnalysisInterval)
	viper.SetDefault("top_n", cfg.TopN)
	viper.SetDefault("payload_display_len", cfg.PayloadDisplayLen)
	viper.SetDefault("web_port", cfg.WebPort)
	viper.SetDefault("geoip_url", cfg.GeoIPURL)

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the capture and analysis settings for obvious mistakes.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return fmt.Errorf("no ports configured")
	}
	for _, p := range c.Ports {
		if p < 0 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.PayloadDisplayLen <= 0 {
		return fmt.Errorf("payload_display_len must be positive, got %d", c.PayloadDisplayLen)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	return nil
}

// fileConfig is the on-disk shape of Config; durations are written as strings
// so the file stays readable.
type fileConfig struct {
	DataDir           string            `yaml:"data_dir"`
	LogLevel          string            `yaml:"log_level"`
	LogFile           string            `yaml:"log_file"`
	LogDir            string            `yaml:"log_dir"`
	BindAddress       string            `yaml:"bind_address"`
	Ports             []int             `yaml:"ports,flow"`
	Banners           map[string]string `yaml:"banners,omitempty"`
	IdleTimeout       string            `yaml:"idle_timeout"`
	MaxConnsPerPort   int               `yaml:"max_conns_per_port"`
	AnalysisInterval  string            `yaml:"analysis_interval"`
	TopN              int               `yaml:"top_n"`
	PayloadDisplayLen int               `yaml:"payload_display_len"`
	WebPort           int               `yaml:"web_port"`
	GeoIPURL          string            `yaml:"geoip_url"`
}

// YAML renders the configuration in the format LoadConfig reads.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(fileConfig{
		DataDir:           c.DataDir,
		LogLevel:          c.LogLevel,
		LogFile:           c.LogFile,
		LogDir:            c.LogDir,
		BindAddress:       c.BindAddress,
		Ports:             c.Ports,
		Banners:           c.Banners,
		IdleTimeout:       c.IdleTimeout.String(),
		MaxConnsPerPort:   c.MaxConnsPerPort,
		AnalysisInterval:  c.AnalysisInterval.String(),
		TopN:              c.TopN,
		PayloadDisplayLen: c.PayloadDisplayLen,
		WebPort:           c.WebPort,
		GeoIPURL:          c.GeoIPURL,
	})
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
