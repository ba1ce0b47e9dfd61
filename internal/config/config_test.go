package config

import (
	"os"
	"path/filepath"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		os.Setenv(k, v)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_MissingAuthFails(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	for _, k := range []string{"FB_COOKIES", "FB_C_USER", "FB_XS"} {
		os.Unsetenv(k)
	}

	if _, err := Load(); err == nil {
		t.Fatal("Load() with no auth configured should error")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	withEnv(t, map[string]string{
		"FB_C_USER": "1000",
		"FB_XS":     "abc123",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SendRatePerSec != 5 {
		t.Errorf("SendRatePerSec = %d, want 5", cfg.SendRatePerSec)
	}
	if cfg.MaxConcurrentHandlers != 10 {
		t.Errorf("MaxConcurrentHandlers = %d, want 10", cfg.MaxConcurrentHandlers)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", cfg.MetricsPort)
	}
	if !cfg.Cookies.HasAuth() {
		t.Error("expected cookies to carry auth")
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	for _, k := range []string{"FB_COOKIES", "FB_C_USER", "FB_XS", "SEND_RATE_PER_SEC"} {
		os.Unsetenv(k)
	}

	content := "FB_C_USER=555\nFB_XS=xsvalue\nSEND_RATE_PER_SEC=9\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SendRatePerSec != 9 {
		t.Errorf("SendRatePerSec = %d, want 9", cfg.SendRatePerSec)
	}
}

func TestLoad_ProcessEnvTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	content := "FB_C_USER=555\nFB_XS=xsvalue\nSEND_RATE_PER_SEC=9\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	withEnv(t, map[string]string{"SEND_RATE_PER_SEC": "42"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SendRatePerSec != 42 {
		t.Errorf("SendRatePerSec = %d, want 42 (process env should win)", cfg.SendRatePerSec)
	}
}

func TestIsEditable(t *testing.T) {
	if !IsEditable("LOG_LEVEL") {
		t.Error("LOG_LEVEL should be editable")
	}
	if IsEditable("FB_COOKIES") {
		t.Error("FB_COOKIES must not be editable")
	}
	if IsEditable("FB_XS") {
		t.Error("FB_XS must not be editable")
	}
}
