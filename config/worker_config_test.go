package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("POLL_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.QueueStream != "triage:jobs" {
		t.Errorf("QueueStream = %q", cfg.QueueStream)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.toml")
	content := `
openai_model = "gpt-4.1-mini"
worker_concurrency = 3
poll_interval = "90s"
timezone = "Australia/Melbourne"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKER_CONCURRENCY", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.OpenAIModel != "gpt-4.1-mini" {
		t.Errorf("OpenAIModel = %q, file value expected", cfg.OpenAIModel)
	}
	if cfg.WorkerConcurrency != 12 {
		t.Errorf("WorkerConcurrency = %d, env should win over file", cfg.WorkerConcurrency)
	}
	if cfg.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v, want 90s", cfg.PollInterval)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Australia/Melbourne" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		mode    string
		wantErr bool
	}{
		{"api needs database", Config{}, "api", true},
		{"api ok", Config{DatabaseURL: "postgres://x"}, "api", false},
		{"worker needs openai", Config{DatabaseURL: "postgres://x", GoogleClientID: "id", GoogleClientSecret: "s"}, "worker", true},
		{"worker ok", Config{DatabaseURL: "postgres://x", OpenAIAPIKey: "k", GoogleClientID: "id", GoogleClientSecret: "s"}, "worker", false},
		{"push topic needs token", Config{DatabaseURL: "postgres://x", PubSubTopic: "projects/p/topics/t"}, "api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
