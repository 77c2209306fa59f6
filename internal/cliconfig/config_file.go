package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DBPath          string `toml:"db_path"`
	ServiceURL      string `toml:"service_url"`
	SubmitPath      string `toml:"submit_path"`
	APIKey          string `toml:"api_key"`
	APISecret       string `toml:"api_secret"`
	CredentialsFile string `toml:"credentials_file"`
	SyncInterval    string `toml:"sync_interval"`
	SubmitTimeout   string `toml:"submit_timeout"`
	HTTPTimeout     string `toml:"http_timeout"`
	AssumeOnline    *bool  `toml:"assume_online"`
	ProbeAddr       string `toml:"probe_addr"`
	ProbeInterval   string `toml:"probe_interval"`
	ProbeTimeout    string `toml:"probe_timeout"`
	ListenAddr      string `toml:"listen_addr"`
	LogBackend      string `toml:"log_backend"`
	LogFormat       string `toml:"log_format"`
	LogLevel        string `toml:"log_level"`
	Once            *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.possync/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".possync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-path", fc.DBPath, &cfg.DBPath)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("submit-path", fc.SubmitPath, &cfg.SubmitPath)
	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("api-secret", fc.APISecret, &cfg.APISecret)
	s.setString("credentials-file", fc.CredentialsFile, &cfg.CredentialsFile)
	s.setString("probe-addr", fc.ProbeAddr, &cfg.ProbeAddr)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("log-backend", fc.LogBackend, &cfg.LogBackend)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("sync-interval", fc.SyncInterval, &cfg.SyncInterval); err != nil {
		return err
	}
	if err := s.setDuration("submit-timeout", fc.SubmitTimeout, &cfg.SubmitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", fc.ProbeInterval, &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-timeout", fc.ProbeTimeout, &cfg.ProbeTimeout); err != nil {
		return err
	}

	s.setBool("assume-online", fc.AssumeOnline, &cfg.AssumeOnline)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
