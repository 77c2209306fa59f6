package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"POSSYNC_DB_PATH":       "/env/pos.db",
				"POSSYNC_SERVICE_URL":   "https://env.example.com",
				"POSSYNC_API_KEY":       "env-key",
				"POSSYNC_API_SECRET":    "env-secret",
				"POSSYNC_SYNC_INTERVAL": "10m",
				"POSSYNC_ASSUME_ONLINE": "false",
				"POSSYNC_ONCE":          "1",
			},
			changed: map[string]bool{},
			initial: Config{AssumeOnline: true},
			expected: Config{
				DBPath:       "/env/pos.db",
				ServiceURL:   "https://env.example.com",
				APIKey:       "env-key",
				APISecret:    "env-secret",
				SyncInterval: 10 * time.Minute,
				AssumeOnline: false,
				Once:         true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"POSSYNC_DB_PATH":     "/env/pos.db",
				"POSSYNC_SERVICE_URL": "https://env.example.com",
			},
			changed: map[string]bool{"db-path": true},
			initial: Config{DBPath: "/flag/pos.db"},
			expected: Config{
				DBPath:     "/flag/pos.db",
				ServiceURL: "https://env.example.com",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"POSSYNC_SUBMIT_TIMEOUT": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v\nwant %+v", cfg, tt.expected)
			}
		})
	}
}

// Precedence order: flags > env > file > defaults.
func TestConfigPrecedence(t *testing.T) {
	onlineFromFile := false
	fileConf := FileConfig{
		DBPath:       "/file/pos.db",
		ServiceURL:   "https://file.example.com",
		SyncInterval: "1m",
		AssumeOnline: &onlineFromFile,
	}

	t.Setenv("POSSYNC_SERVICE_URL", "https://env.example.com")
	t.Setenv("POSSYNC_DB_PATH", "/env/pos.db")

	changed := map[string]bool{"db-path": true}

	cfg := DefaultConfig()
	cfg.DBPath = "/cli/pos.db"

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.DBPath != "/cli/pos.db" {
		t.Errorf("DBPath = %v, want /cli/pos.db (flag should win)", cfg.DBPath)
	}
	if cfg.ServiceURL != "https://env.example.com" {
		t.Errorf("ServiceURL = %v, want env value over file", cfg.ServiceURL)
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("SyncInterval = %v, want 1m from file", cfg.SyncInterval)
	}
	if cfg.AssumeOnline {
		t.Error("AssumeOnline = true, want false from file")
	}
	if cfg.SubmitTimeout != 15*time.Second {
		t.Errorf("SubmitTimeout = %v, want default 15s", cfg.SubmitTimeout)
	}
}
