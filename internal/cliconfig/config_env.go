package cliconfig

import "os"

// ApplyEnvConfig applies POSSYNC_* environment variables to cfg, skipping
// values whose flag was set on the command line.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-path", os.Getenv("POSSYNC_DB_PATH"), &cfg.DBPath)
	s.setString("service-url", os.Getenv("POSSYNC_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("submit-path", os.Getenv("POSSYNC_SUBMIT_PATH"), &cfg.SubmitPath)
	s.setString("api-key", os.Getenv("POSSYNC_API_KEY"), &cfg.APIKey)
	s.setString("api-secret", os.Getenv("POSSYNC_API_SECRET"), &cfg.APISecret)
	s.setString("credentials-file", os.Getenv("POSSYNC_CREDENTIALS_FILE"), &cfg.CredentialsFile)
	s.setString("probe-addr", os.Getenv("POSSYNC_PROBE_ADDR"), &cfg.ProbeAddr)
	s.setString("listen", os.Getenv("POSSYNC_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("log-backend", os.Getenv("POSSYNC_LOG_BACKEND"), &cfg.LogBackend)
	s.setString("log-format", os.Getenv("POSSYNC_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("log-level", os.Getenv("POSSYNC_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("sync-interval", os.Getenv("POSSYNC_SYNC_INTERVAL"), &cfg.SyncInterval); err != nil {
		return err
	}
	if err := s.setDuration("submit-timeout", os.Getenv("POSSYNC_SUBMIT_TIMEOUT"), &cfg.SubmitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("POSSYNC_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("probe-interval", os.Getenv("POSSYNC_PROBE_INTERVAL"), &cfg.ProbeInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-timeout", os.Getenv("POSSYNC_PROBE_TIMEOUT"), &cfg.ProbeTimeout); err != nil {
		return err
	}

	s.setBoolFromString("assume-online", os.Getenv("POSSYNC_ASSUME_ONLINE"), &cfg.AssumeOnline)
	s.setBoolFromString("once", os.Getenv("POSSYNC_ONCE"), &cfg.Once)

	return nil
}
