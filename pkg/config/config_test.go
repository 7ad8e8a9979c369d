package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depictor.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}

	if cfg.Wiki.DepictsProperty != "P180" {
		t.Errorf("expected default depicts property P180, got %s", cfg.Wiki.DepictsProperty)
	}
	if cfg.Closure.TTL.D() != 120*time.Second {
		t.Errorf("expected default closure TTL 120s, got %v", cfg.Closure.TTL.D())
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depictor.yaml")

	yaml := `
generator:
  limit: 10
  extensions: [jpg, png]
closure:
  ttl: 5m
queue:
  workers: 2
  max_restarts: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Generator.Limit != 10 {
		t.Errorf("expected limit 10, got %d", cfg.Generator.Limit)
	}
	if len(cfg.Generator.Extensions) != 2 {
		t.Errorf("expected 2 extensions, got %v", cfg.Generator.Extensions)
	}
	if cfg.Closure.TTL.D() != 5*time.Minute {
		t.Errorf("expected TTL 5m, got %v", cfg.Closure.TTL.D())
	}
	// Sections absent from the file keep their defaults
	if cfg.Request.Retries != 3 {
		t.Errorf("expected default retries 3, got %d", cfg.Request.Retries)
	}
}

func TestOAuthEnvFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "depictor.yaml")

	t.Setenv("DEPICTOR_CONSUMER_KEY", "test-consumer-key")
	t.Setenv("DEPICTOR_CONSUMER_SECRET", "test-consumer-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OAuth.ConsumerKey != "test-consumer-key" || cfg.OAuth.ConsumerSecret != "test-consumer-secret" {
		t.Errorf("expected env fallback for consumer credential, got %+v", cfg.OAuth)
	}

	// The secret must not be persisted
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" {
		t.Fatal("config file empty")
	}
	for _, needle := range []string{"test-consumer-key", "test-consumer-secret"} {
		if strings.Contains(string(data), needle) {
			t.Errorf("secret %q leaked into config file", needle)
		}
	}
}

func TestParseDurationExtended(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"2m", 2 * time.Minute},
		{"1d", Day},
		{"1w", Week},
		{"1d12h", Day + 12*time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCompiledIgnorePatterns(t *testing.T) {
	g := GeneratorConfig{IgnoredCategoryPatterns: []string{`(?i)unidentified`}}
	res, err := g.CompiledIgnorePatterns()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !res[0].MatchString("Category:Unidentified birds") {
		t.Error("pattern should match case-insensitively")
	}

	g = GeneratorConfig{IgnoredCategoryPatterns: []string{`(`}}
	if _, err := g.CompiledIgnorePatterns(); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
