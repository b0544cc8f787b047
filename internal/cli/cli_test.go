package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/sitedrop/internal/app"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GITHUB_TOKEN", "GITHUB_USERNAME", "GITHUB_API_URL", "PORT", "LOG_LEVEL", "RATE_LIMIT_REDIS_PASSWORD", "SWAGGER_ENABLED"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommand_PrintsEffectiveConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_secret")
	t.Setenv("GITHUB_USERNAME", "octo")

	out, err := run(t, "config", "--port", "8081", "--log-level", "debug")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if strings.Contains(out, "ghp_secret") {
		t.Fatal("token must not be printed")
	}

	var cfg app.Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if cfg.HTTP.Port != 8081 {
		t.Errorf("expected port flag to win, got %d", cfg.HTTP.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.GitHub.Owner != "octo" || cfg.GitHub.Token != "<redacted>" {
		t.Errorf("unexpected github section %+v", cfg.GitHub)
	}
}

func TestConfigCommand_ReadsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sitedrop.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 4000\nupload_dir: /tmp/staging\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "config", "--config", path)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "port: 4000") || !strings.Contains(out, "upload_dir: /tmp/staging") {
		t.Errorf("file settings missing from output:\n%s", out)
	}
}

func TestConfigCommand_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := run(t, "config", "--config", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestServeCommand_RequiresCredentials(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "serve")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "GITHUB_TOKEN") || !strings.Contains(err.Error(), "GITHUB_USERNAME") {
		t.Errorf("error should name both missing settings: %v", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	clearEnv(t)
	if _, err := run(t, "deploy-everything"); err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
}
