package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Sender.DefaultCountryCode != "+65" {
		t.Errorf("DefaultCountryCode = %q, want +65", cfg.Sender.DefaultCountryCode)
	}
	if cfg.WhatsApp.BaseURL != "https://web.whatsapp.com" {
		t.Errorf("BaseURL = %q", cfg.WhatsApp.BaseURL)
	}
	if cfg.IsProduction() {
		t.Error("default config should not be production")
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nuntio.toml")
	content := `
environment = "production"

[server]
port = 9090

[sender]
default_country_code = "+61"
send_rate_every = "2s"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	// Values absent from the file keep their defaults
	if cfg.Server.Host != "localhost" {
		t.Errorf("Host = %q, want default localhost", cfg.Server.Host)
	}
	if cfg.Sender.SendEvery() != 2*time.Second {
		t.Errorf("SendEvery = %v, want 2s", cfg.Sender.SendEvery())
	}
}

func TestLoadFromFiles_EnvOverride(t *testing.T) {
	t.Setenv("NUNTIO_SERVER_PORT", "7001")
	t.Setenv("NUNTIO_DEFAULT_COUNTRY_CODE", "+44")

	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Port = %d, want 7001 from env", cfg.Server.Port)
	}
	if cfg.Sender.DefaultCountryCode != "+44" {
		t.Errorf("DefaultCountryCode = %q, want +44 from env", cfg.Sender.DefaultCountryCode)
	}
}

func TestParseDurationOr(t *testing.T) {
	if d := ParseDurationOr("", time.Second); d != time.Second {
		t.Errorf("empty = %v", d)
	}
	if d := ParseDurationOr("bogus", time.Second); d != time.Second {
		t.Errorf("malformed = %v", d)
	}
	if d := ParseDurationOr("-5s", time.Second); d != time.Second {
		t.Errorf("negative = %v", d)
	}
	if d := ParseDurationOr("750ms", time.Second); d != 750*time.Millisecond {
		t.Errorf("valid = %v", d)
	}
}

func TestIsJobID(t *testing.T) {
	if !IsJobID(NewJobID()) {
		t.Error("generated job ID should validate")
	}
	for _, bad := range []string{"", "job_", "job_nope", "doc_550e8400-e29b-41d4-a716-446655440000"} {
		if IsJobID(bad) {
			t.Errorf("IsJobID(%q) = true, want false", bad)
		}
	}
}
