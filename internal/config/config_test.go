package config

import (
	"os"
	"path/filepath"
	"testing"
)

var envVars = []string{
	"CONFIG_FILE", "HTTP_ADDR", "LOCAL_BACKEND_URL", "REALTIME_URL",
	"REALTIME_API_KEY", "TRANSLATE_URL", "TRANSLATE_API_KEY",
	"TARGET_LANGUAGE", "VOICE", "SAMPLE_RATE", "PLAYBACK_SAMPLE_RATE",
	"LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.LocalBackendURL != "http://localhost:8765" {
		t.Errorf("LocalBackendURL = %q", cfg.LocalBackendURL)
	}
	if cfg.TargetLanguage != "French" {
		t.Errorf("TargetLanguage = %q, want French", cfg.TargetLanguage)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.PlaybackSampleRate != 24000 {
		t.Errorf("PlaybackSampleRate = %d, want 24000", cfg.PlaybackSampleRate)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("HTTP_ADDR", ":9000")
	os.Setenv("TARGET_LANGUAGE", "Japanese")
	os.Setenv("SAMPLE_RATE", "48000")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.TargetLanguage != "Japanese" {
		t.Errorf("TargetLanguage = %q, want Japanese", cfg.TargetLanguage)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "platform.yaml")
	data := []byte("target_language: German\nhttp_addr: \":7000\"\nvoice: alloy\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CONFIG_FILE", path)
	os.Setenv("TARGET_LANGUAGE", "Korean") // env wins over file
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.HTTPAddr != ":7000" {
		t.Errorf("HTTPAddr = %q, want file value :7000", cfg.HTTPAddr)
	}
	if cfg.Voice != "alloy" {
		t.Errorf("Voice = %q, want file value alloy", cfg.Voice)
	}
	if cfg.TargetLanguage != "Korean" {
		t.Errorf("TargetLanguage = %q, want env override Korean", cfg.TargetLanguage)
	}
	// File must not disturb untouched defaults.
	if cfg.PlaybackSampleRate != 24000 {
		t.Errorf("PlaybackSampleRate = %d, want default 24000", cfg.PlaybackSampleRate)
	}
}

func TestLoadBadFile(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Load() with missing file = nil, want error")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Setenv("CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Error("Load() with malformed file = nil, want error")
	}
}
