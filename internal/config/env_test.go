package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpdateEnv_AppliesOnlyEditableKeys(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# comment\nFB_C_USER=1000\nFB_XS=abc\nLOG_LEVEL=info\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{LogLevel: "info"}
	applied, err := UpdateEnv(cfg, envPath, map[string]string{
		"LOG_LEVEL":  "debug",
		"FB_COOKIES": "hacked",
	})
	if err != nil {
		t.Fatalf("UpdateEnv error: %v", err)
	}
	if len(applied) != 1 || applied[0] != "LOG_LEVEL" {
		t.Errorf("applied = %v, want [LOG_LEVEL]", applied)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("cfg.LogLevel = %q, want debug", cfg.LogLevel)
	}
	if os.Getenv("LOG_LEVEL") != "debug" {
		t.Errorf("process env LOG_LEVEL = %q, want debug", os.Getenv("LOG_LEVEL"))
	}

	raw, err := os.ReadFile(envPath)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.Contains(text, "LOG_LEVEL=debug") {
		t.Errorf(".env not updated: %s", text)
	}
	if !strings.Contains(text, "FB_XS=abc") {
		t.Errorf(".env lost unrelated key: %s", text)
	}
	if !strings.Contains(text, "# comment") {
		t.Errorf(".env lost comment: %s", text)
	}
	if strings.Contains(text, "hacked") {
		t.Errorf(".env must not contain non-editable update: %s", text)
	}
}

func TestGetEditableEnv_MasksSecrets(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "super-secret")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg := &Config{}
	env := cfg.GetEditableEnv()
	if env["GEMINI_API_KEY"] != "********" {
		t.Errorf("GEMINI_API_KEY = %q, want masked", env["GEMINI_API_KEY"])
	}
}

func TestSanitizeEnvValue_StripsCRLF(t *testing.T) {
	got := sanitizeEnvValue("line1\r\nline2\r")
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("sanitizeEnvValue left CR/LF: %q", got)
	}
}

func TestWriteEnvFile_QuotesSpecialValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	lines := []envLine{{key: "FOO", value: "has space"}}
	if err := WriteEnvFile(path, lines); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `FOO="has space"`) {
		t.Errorf("expected quoted value, got %s", raw)
	}
}
