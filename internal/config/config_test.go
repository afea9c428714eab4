package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "GIN_MODE", "CORS_ALLOWED_ORIGINS", "MAX_FILE_SIZE",
		"WORK_DIR", "SOFFICE_PATH", "CONVERT_TIMEOUT_SECONDS",
		"WORKER_COUNT", "QUEUE_REDIS_URL", "JOB_EXPIRE_MINUTES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("unexpected Port: %q", cfg.Port)
	}
	if cfg.GinMode != "debug" {
		t.Errorf("unexpected GinMode: %q", cfg.GinMode)
	}
	if cfg.MaxFileSize != 50*1024*1024 {
		t.Errorf("unexpected MaxFileSize: %d", cfg.MaxFileSize)
	}
	if cfg.WorkDir != "/tmp/conversions" {
		t.Errorf("unexpected WorkDir: %q", cfg.WorkDir)
	}
	if cfg.SofficePath != "soffice" {
		t.Errorf("unexpected SofficePath: %q", cfg.SofficePath)
	}
	if cfg.ConvertTimeoutSeconds != 60 {
		t.Errorf("unexpected ConvertTimeoutSeconds: %d", cfg.ConvertTimeoutSeconds)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("unexpected WorkerCount: %d", cfg.WorkerCount)
	}
	if cfg.QueueRedisURL != "" {
		t.Errorf("unexpected QueueRedisURL: %q", cfg.QueueRedisURL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_FILE_SIZE", "1048576")
	t.Setenv("CONVERT_TIMEOUT_SECONDS", "15")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("SOFFICE_PATH", "/usr/bin/soffice")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("unexpected Port: %q", cfg.Port)
	}
	if cfg.MaxFileSize != 1048576 {
		t.Errorf("unexpected MaxFileSize: %d", cfg.MaxFileSize)
	}
	if cfg.ConvertTimeout() != 15*time.Second {
		t.Errorf("unexpected ConvertTimeout: %s", cfg.ConvertTimeout())
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("unexpected WorkerCount: %d", cfg.WorkerCount)
	}
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("CONVERT_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("MAX_FILE_SIZE", "also-not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ConvertTimeoutSeconds != 60 {
		t.Errorf("unexpected ConvertTimeoutSeconds: %d", cfg.ConvertTimeoutSeconds)
	}
	if cfg.MaxFileSize != 50*1024*1024 {
		t.Errorf("unexpected MaxFileSize: %d", cfg.MaxFileSize)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			WorkDir:               "/tmp/conversions",
			MaxFileSize:           1024,
			ConvertTimeoutSeconds: 60,
			WorkerCount:           4,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty work dir", func(c *Config) { c.WorkDir = "" }},
		{"zero max file size", func(c *Config) { c.MaxFileSize = 0 }},
		{"zero timeout", func(c *Config) { c.ConvertTimeoutSeconds = 0 }},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
