package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ListenOff disables the local bridge when given as listen_addr.
const ListenOff = "off"

// Config holds CLI configuration for possync.
type Config struct {
	DBPath string

	ServiceURL      string
	SubmitPath      string
	APIKey          string
	APISecret       string
	CredentialsFile string

	SyncInterval  time.Duration
	SubmitTimeout time.Duration
	HTTPTimeout   time.Duration

	AssumeOnline  bool
	ProbeAddr     string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	ListenAddr string

	LogBackend string
	LogFormat  string
	LogLevel   string

	Once bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(homeDir(), ".possync", "possync.db"),
		SubmitPath:    "/api/resource/Sales Invoice",
		SyncInterval:  30 * time.Second,
		SubmitTimeout: 15 * time.Second,
		HTTPTimeout:   20 * time.Second,
		AssumeOnline:  true,
		ProbeInterval: 5 * time.Second,
		ProbeTimeout:  3 * time.Second,
		ListenAddr:    "127.0.0.1:8787",
		LogBackend:    "zerolog",
		LogFormat:     "console",
		LogLevel:      "info",
	}
}

// Validate checks the configuration for errors and normalizes derived values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}

	// Ensure no trailing slash
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")

	if c.SubmitPath != "" && !strings.HasPrefix(c.SubmitPath, "/") {
		c.SubmitPath = "/" + c.SubmitPath
	}

	if c.ListenAddr == ListenOff {
		c.ListenAddr = ""
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("submit timeout must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.ProbeAddr != "" && c.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive")
	}
	if (c.APIKey == "") != (c.APISecret == "") {
		return fmt.Errorf("api-key and api-secret must be set together")
	}

	return nil
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if c.APIKey != "" {
		c.APIKey = "*****"
	}
	if c.APISecret != "" {
		c.APISecret = "*****"
	}
	return c
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
