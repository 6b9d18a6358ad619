package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "haruki-hca-configs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
backend:
  host: 127.0.0.1
  port: 9000
  log_level: DEBUG
  enable_authorization: true
  accept_authorization_token: secret
decode:
  default_key: "0x0030D9E8"
  skip_corrupt_frames: true
  key_rules:
    - pattern: "^se_"
      key: "12345"
      subkey: "0x1234"
  usm_key: "0x1122334455667788"
storage:
  enabled: true
  bucket: audio
  path_style: true
tool:
  ffmpeg_path: /usr/local/bin/ffmpeg
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.Host != "127.0.0.1" || cfg.Backend.Port != 9000 || cfg.Backend.LogLevel != "DEBUG" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if !cfg.Backend.EnableAuthorization || cfg.Backend.AcceptAuthorizationToken != "secret" {
		t.Errorf("authorization settings = %+v", cfg.Backend)
	}
	if cfg.Decode.DefaultKey != "0x0030D9E8" || !cfg.Decode.SkipCorruptFrames || cfg.Decode.USMKey != "0x1122334455667788" {
		t.Errorf("decode = %+v", cfg.Decode)
	}
	if len(cfg.Decode.KeyRules) != 1 || cfg.Decode.KeyRules[0] != (KeyRule{Pattern: "^se_", Key: "12345", Subkey: "0x1234"}) {
		t.Errorf("key rules = %+v", cfg.Decode.KeyRules)
	}
	if !cfg.Storage.Enabled || cfg.Storage.Bucket != "audio" || !cfg.Storage.PathStyle {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Tools.FFMPEGPath != "/usr/local/bin/ffmpeg" {
		t.Errorf("ffmpeg path = %q", cfg.Tools.FFMPEGPath)
	}

	// unset values fall back to defaults
	if cfg.Backend.BodyLimitMB != 64 || cfg.BodyLimit() != 64<<20 {
		t.Errorf("body limit = %d MiB", cfg.Backend.BodyLimitMB)
	}
	if cfg.Remote.TimeoutSeconds != 30 || cfg.Storage.ConcurrentUploads != 4 {
		t.Errorf("timeout = %d, uploads = %d, want 30, 4", cfg.Remote.TimeoutSeconds, cfg.Storage.ConcurrentUploads)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Backend.Port != 8080 || cfg.Backend.LogLevel != "INFO" || cfg.Tools.FFMPEGPath != "ffmpeg" {
		t.Errorf("Default() = %+v", cfg)
	}
	if cfg.Storage.Enabled || cfg.Backend.EnableAuthorization {
		t.Errorf("Default() enables optional features: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.yaml") }},
		{"bad yaml", func(t *testing.T) string { return writeConfig(t, "backend: [1, 2") }},
		{"unknown field", func(t *testing.T) string { return writeConfig(t, "servers: {}\n") }},
		{"wrong type", func(t *testing.T) string { return writeConfig(t, "backend:\n  port: http\n") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Load(tt.path(t)); err == nil {
				t.Errorf("Load() succeeded, want error")
			}
		})
	}
}
