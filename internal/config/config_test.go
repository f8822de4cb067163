package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dispatch.yaml", `
provider:
  api_key: test-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("Provider.Name = %q, want anthropic", cfg.Provider.Name)
	}
	if cfg.Loop.MaxSteps != 6 {
		t.Errorf("Loop.MaxSteps = %d, want 6", cfg.Loop.MaxSteps)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("Breaker.FailureThreshold = %d, want 3", cfg.Breaker.FailureThreshold)
	}
	if cfg.Health.TTL != 5*time.Minute {
		t.Errorf("Health.TTL = %v, want 5m", cfg.Health.TTL)
	}
	if cfg.Health.FailClosed {
		t.Error("health policy should default to fail-open")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("SN_PASSWORD", "hunter22secret")
	dir := t.TempDir()
	path := writeFile(t, dir, "dispatch.yaml", `
servicenow:
  instance_url: https://dev.service-now.com
  username: qa.bot
  password: ${SN_PASSWORD}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceNow.Password != "hunter22secret" {
		t.Errorf("password not expanded: %q", cfg.ServiceNow.Password)
	}
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
logging:
  level: debug
loop:
  max_steps: 4
`)
	path := writeFile(t, dir, "dispatch.yaml", `
$include: base.yaml
loop:
  max_steps: 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("included logging.level lost: %q", cfg.Logging.Level)
	}
	if cfg.Loop.MaxSteps != 8 {
		t.Errorf("including file should win: MaxSteps = %d", cfg.Loop.MaxSteps)
	}
}

func TestLoadAcceptsLegacyIncludeKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "logging:\n  level: warn\n")
	path := writeFile(t, dir, "dispatch.yaml", "include: base.yaml\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("legacy include key ignored: level = %q", cfg.Logging.Level)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dispatch.json5", `{
  // comments are allowed here
  provider: { name: "openai", api_key: "k" },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "openai" {
		t.Errorf("Provider.Name = %q", cfg.Provider.Name)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dispatch.yaml", "provder:\n  name: anthropic\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Provider.Name = "acme-llm"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidateRejectsBadInstanceURL(t *testing.T) {
	cfg := Default()
	cfg.ServiceNow.InstanceURL = "dev.service-now.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for scheme-less instance URL")
	}
}

func TestJSONSchemaMarshals(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	if !strings.Contains(string(data), "servicenow") {
		t.Errorf("schema missing servicenow section")
	}
}
