// Package config handles platform configuration
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr           string `yaml:"http_addr"`
	LocalBackendURL    string `yaml:"local_backend_url"`
	RealtimeURL        string `yaml:"realtime_url"`
	RealtimeAPIKey     string `yaml:"realtime_api_key"`
	TranslateURL       string `yaml:"translate_url"`
	TranslateAPIKey    string `yaml:"translate_api_key"`
	TargetLanguage     string `yaml:"target_language"`
	Voice              string `yaml:"voice"`
	SampleRate         int    `yaml:"sample_rate"`
	PlaybackSampleRate int    `yaml:"playback_sample_rate"`
	LogLevel           string `yaml:"log_level"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:           ":8000",
		LocalBackendURL:    "http://localhost:8765",
		RealtimeURL:        "wss://api.openai.com/v1/realtime",
		TranslateURL:       "http://localhost:8765",
		TargetLanguage:     "French",
		SampleRate:         16000,
		PlaybackSampleRate: 24000,
		LogLevel:           "info",
	}
}

// Load builds the configuration in layers: defaults, then an optional
// YAML file named by CONFIG_FILE, then individual environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LocalBackendURL = getEnv("LOCAL_BACKEND_URL", cfg.LocalBackendURL)
	cfg.RealtimeURL = getEnv("REALTIME_URL", cfg.RealtimeURL)
	cfg.RealtimeAPIKey = getEnv("REALTIME_API_KEY", cfg.RealtimeAPIKey)
	cfg.TranslateURL = getEnv("TRANSLATE_URL", cfg.TranslateURL)
	cfg.TranslateAPIKey = getEnv("TRANSLATE_API_KEY", cfg.TranslateAPIKey)
	cfg.TargetLanguage = getEnv("TARGET_LANGUAGE", cfg.TargetLanguage)
	cfg.Voice = getEnv("VOICE", cfg.Voice)
	cfg.SampleRate = getEnvInt("SAMPLE_RATE", cfg.SampleRate)
	cfg.PlaybackSampleRate = getEnvInt("PLAYBACK_SAMPLE_RATE", cfg.PlaybackSampleRate)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
