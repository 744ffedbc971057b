// Package config loads the syncer configuration file.
//
// The file is re-read at the start of every sync cycle, so edits made while
// the daemon is running (new networks, changed credentials) take effect on
// the next cycle without a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NetworkProfile identifies one Wi-Fi network the device may associate with.
type NetworkProfile struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// Config holds all syncer configuration.
type Config struct {
	// Ledger file paths
	LocalDBPath  string `yaml:"local_db_path"`
	FlystoDBPath string `yaml:"flysto_db_path"`

	// Networks. InternetNetworks is ordered: earlier entries are tried first.
	InternetNetworks   []NetworkProfile `yaml:"internet_networks"`
	FlashAirWifiSSID   string           `yaml:"flashair_wifi_ssid"`
	FlashAirWifiPass   string           `yaml:"flashair_wifi_password"`
	FlashAirIP         string           `yaml:"flashair_ip"`
	FlashAirDataLogDir string           `yaml:"flashair_data_log_dir"`

	// Local log repository
	LocalRepoPath string `yaml:"local_repo_path"`
	LogFileExt    string `yaml:"log_file_ext"`

	// Flysto archive service
	FlystoEmail    string `yaml:"flysto_email"`
	FlystoPassword string `yaml:"flysto_password"`
	FlystoBaseURL  string `yaml:"flysto_base_url"`

	// Scheduling
	SyncIntervalSeconds int `yaml:"sync_interval_seconds"`

	// Observability
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the metrics listener
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		FlashAirDataLogDir:  "/DATALOG",
		LogFileExt:          ".igc",
		FlystoBaseURL:       "https://www.flysto.net",
		SyncIntervalSeconds: 900,
		LogLevel:            "info",
		LogFormat:           "json",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LocalDBPath == "" {
		return fmt.Errorf("local_db_path is required")
	}
	if c.FlystoDBPath == "" {
		return fmt.Errorf("flysto_db_path is required")
	}
	if c.FlashAirWifiSSID == "" {
		return fmt.Errorf("flashair_wifi_ssid is required")
	}
	if c.FlashAirIP == "" {
		return fmt.Errorf("flashair_ip is required")
	}
	if c.LocalRepoPath == "" {
		return fmt.Errorf("local_repo_path is required")
	}
	if c.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("sync_interval_seconds must be positive")
	}
	return nil
}

// SyncInterval returns the configured interval between automatic cycles.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// IsInternetSSID reports whether ssid appears in the internet-role profile
// list. Connection priority assignment keys off this.
func (c *Config) IsInternetSSID(ssid string) bool {
	for _, p := range c.InternetNetworks {
		if p.SSID == ssid {
			return true
		}
	}
	return false
}
