package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.App.Execution.Parallelism != 1 {
		t.Fatalf("expected default parallelism == 1, got %d", c.App.Execution.Parallelism)
	}
	if c.App.Preflight.Mode != "strict" {
		t.Fatalf("expected default preflight mode strict, got %q", c.App.Preflight.Mode)
	}
	if !c.App.Output.WriteLocal || !c.App.Output.PrintStdout {
		t.Fatalf("expected output defaults enabled, got %+v", c.App.Output)
	}
	if c.App.Retention.Days != 30 {
		t.Fatalf("expected default retention days == 30, got %d", c.App.Retention.Days)
	}
}

func TestNewConfigParsesToml(t *testing.T) {
	projectDir := t.TempDir()
	configTOML := strings.TrimSpace(`
[execution]
parallelism = 4

[preflight]
mode = "Lenient"

[retention]
enabled = true
days = 7

[github]
enabled = true
repo = " example/repo "
default_pr_number = 12

[jules]
default_starting_branch = "main"
base_url = "https://example.test/v1alpha/"
poll_interval_s = 0.5
timeout_s = 90
`)
	if err := os.WriteFile(filepath.Join(projectDir, ConfigFileName), []byte(configTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.App.Execution.Parallelism != 4 {
		t.Fatalf("expected parallelism 4, got %d", c.App.Execution.Parallelism)
	}
	if c.App.Preflight.Mode != "lenient" {
		t.Fatalf("expected normalized lenient mode, got %q", c.App.Preflight.Mode)
	}
	if !c.App.Retention.Enabled || c.App.Retention.Days != 7 {
		t.Fatalf("unexpected retention config: %+v", c.App.Retention)
	}
	if c.App.Github.Repo != "example/repo" {
		t.Fatalf("expected trimmed repo, got %q", c.App.Github.Repo)
	}
	if c.App.Jules.BaseURL != "https://example.test/v1alpha" {
		t.Fatalf("expected trailing slash stripped, got %q", c.App.Jules.BaseURL)
	}
	if c.App.Jules.PollIntervalSeconds != 0.5 {
		t.Fatalf("expected poll interval 0.5, got %v", c.App.Jules.PollIntervalSeconds)
	}
}

func TestNewConfigUnknownPreflightModeFallsBackToStrict(t *testing.T) {
	projectDir := t.TempDir()
	configTOML := "[preflight]\nmode = \"yolo\"\n"
	if err := os.WriteFile(filepath.Join(projectDir, ConfigFileName), []byte(configTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.App.Preflight.Mode != "strict" {
		t.Fatalf("expected strict fallback, got %q", c.App.Preflight.Mode)
	}
}

func TestNewConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	configTOML := "[execution]\nparallelism = -2\n"
	if err := os.WriteFile(filepath.Join(projectDir, ConfigFileName), []byte(configTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected validation error for negative parallelism")
	}
}

func TestInitRunnerDirCreatesLayout(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitRunnerDir(projectDir); err != nil {
		t.Fatalf("InitRunnerDir returned error: %v", err)
	}
	for _, sub := range []string{"runs", "logs"} {
		path := filepath.Join(projectDir, RunnerDir, sub)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %s to be a directory", path)
		}
	}
}

func TestLoadLocalEnvDoesNotOverride(t *testing.T) {
	projectDir := t.TempDir()
	content := strings.Join([]string{
		"# comment",
		"",
		"AGENT_RUNNER_TEST_SET=\"from-file\"",
		"AGENT_RUNNER_TEST_KEPT='file-value'",
		"not a key value line",
	}, "\n")
	if err := os.WriteFile(filepath.Join(projectDir, ".local"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENT_RUNNER_TEST_KEPT", "env-value")
	os.Unsetenv("AGENT_RUNNER_TEST_SET")
	defer os.Unsetenv("AGENT_RUNNER_TEST_SET")

	if err := LoadLocalEnv(projectDir); err != nil {
		t.Fatalf("LoadLocalEnv returned error: %v", err)
	}
	if got := os.Getenv("AGENT_RUNNER_TEST_SET"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("AGENT_RUNNER_TEST_KEPT"); got != "env-value" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}
