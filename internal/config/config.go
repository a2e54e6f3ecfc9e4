// internal/config/config.go
//
// This package handles configuration and the .agent-runner directory
// structure. Every project that uses agent-runner gets a .agent-runner/
// folder created in its root the first time a run starts.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// RunnerDir is the name of the directory we create in each project
	RunnerDir = ".agent-runner"

	// ConfigFileName is the TOML file consulted in the project root and in
	// the user config directory.
	ConfigFileName = "agent-runner.toml"
)

// ExecutionConfig controls how many personas run at once.
type ExecutionConfig struct {
	Parallelism int `toml:"parallelism"`
}

// RetentionConfig controls pruning of old run directories.
type RetentionConfig struct {
	Enabled bool `toml:"enabled"`
	Days    int  `toml:"days"`
}

// OutputConfig controls where persona results end up.
type OutputConfig struct {
	WriteLocal  bool `toml:"write_local"`
	PrintStdout bool `toml:"print_stdout"`
}

// GithubConfig configures the optional PR comment sink.
type GithubConfig struct {
	Enabled         bool   `toml:"enabled"`
	Repo            string `toml:"repo"`
	DefaultPRNumber int    `toml:"default_pr_number"`
}

// PreflightConfig selects how preflight errors are handled.
//
// strict  -> any ERROR aborts the whole run before any persona executes
// lenient -> personas with ERROR are skipped; others run
type PreflightConfig struct {
	Mode string `toml:"mode"`
}

// JulesConfig holds static fallbacks for the Jules provider.
type JulesConfig struct {
	DefaultStartingBranch string  `toml:"default_starting_branch"`
	BaseURL               string  `toml:"base_url"`
	PollIntervalSeconds   float64 `toml:"poll_interval_s"`
	TimeoutSeconds        float64 `toml:"timeout_s"`
}

// AppConfig models agent-runner.toml.
type AppConfig struct {
	Execution ExecutionConfig `toml:"execution"`
	Retention RetentionConfig `toml:"retention"`
	Output    OutputConfig    `toml:"output"`
	Github    GithubConfig    `toml:"github"`
	Preflight PreflightConfig `toml:"preflight"`
	Jules     JulesConfig     `toml:"jules"`
}

// Config holds the runtime configuration for agent-runner.
type Config struct {
	// ProjectDir is the directory where the user ran `agent-runner` from
	ProjectDir string

	// RunnerProjectDir is ProjectDir/.agent-runner
	RunnerProjectDir string

	App AppConfig
}

// InitRunnerDir creates the .agent-runner directory structure in the given
// project directory.
//
// Structure created:
// .agent-runner/
// ├── runs/   <- one subdirectory per run id
// └── logs/   <- agent-runner.log
func InitRunnerDir(projectDir string) error {
	runnerDir := filepath.Join(projectDir, RunnerDir)

	dirs := []string{
		filepath.Join(runnerDir, "runs"),
		filepath.Join(runnerDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig creates a Config populated from the first agent-runner.toml found
// on the search path (project root, then ~/.config/agent-runner). A missing
// config file is not an error; defaults apply.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		RunnerProjectDir: filepath.Join(projectDir, RunnerDir),
		App:              defaultAppConfig(),
	}
	path := pickConfigPath(projectDir)
	if path == "" {
		return cfg, nil
	}
	if err := cfg.loadAppConfig(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigFromFile loads configuration from an explicit path.
func NewConfigFromFile(projectDir, path string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		RunnerProjectDir: filepath.Join(projectDir, RunnerDir),
		App:              defaultAppConfig(),
	}
	if err := cfg.loadAppConfig(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunsDir returns the path holding all run directories.
func (c *Config) RunsDir() string {
	return filepath.Join(c.RunnerProjectDir, "runs")
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.RunnerProjectDir, "logs")
}

// LogFilePath returns the on-disk location of the runner log.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "agent-runner.log")
}

// PersonasDir returns the directory persona YAML files are loaded from.
func (c *Config) PersonasDir() string {
	return filepath.Join(c.ProjectDir, "personas")
}

func pickConfigPath(projectDir string) string {
	candidates := []string{filepath.Join(projectDir, ConfigFileName)}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "agent-runner", ConfigFileName))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c *Config) loadAppConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultAppConfig()
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.App = parsed
	return nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Execution: ExecutionConfig{Parallelism: 1},
		Retention: RetentionConfig{Enabled: false, Days: 30},
		Output:    OutputConfig{WriteLocal: true, PrintStdout: true},
		Preflight: PreflightConfig{Mode: "strict"},
	}
}

func (ac *AppConfig) applyDefaults() {
	if ac.Execution.Parallelism == 0 {
		ac.Execution.Parallelism = 1
	}
	if ac.Retention.Days == 0 {
		ac.Retention.Days = 30
	}
	if strings.TrimSpace(ac.Preflight.Mode) == "" {
		ac.Preflight.Mode = "strict"
	}
}

func (ac *AppConfig) normalize() {
	ac.Preflight.Mode = strings.ToLower(strings.TrimSpace(ac.Preflight.Mode))
	// Unknown preflight modes fall back to strict rather than failing the
	// whole run over a typo.
	if ac.Preflight.Mode != "strict" && ac.Preflight.Mode != "lenient" {
		ac.Preflight.Mode = "strict"
	}
	ac.Github.Repo = strings.TrimSpace(ac.Github.Repo)
	ac.Jules.DefaultStartingBranch = strings.TrimSpace(ac.Jules.DefaultStartingBranch)
	ac.Jules.BaseURL = strings.TrimRight(strings.TrimSpace(ac.Jules.BaseURL), "/")
}

func (ac AppConfig) validate() error {
	if ac.Execution.Parallelism < 1 {
		return fmt.Errorf("execution.parallelism must be >= 1")
	}
	if ac.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be >= 1")
	}
	if ac.Github.Enabled && ac.Github.DefaultPRNumber < 0 {
		return fmt.Errorf("github.default_pr_number must be >= 0")
	}
	if ac.Jules.PollIntervalSeconds < 0 {
		return fmt.Errorf("jules.poll_interval_s must be >= 0")
	}
	if ac.Jules.TimeoutSeconds < 0 {
		return fmt.Errorf("jules.timeout_s must be >= 0")
	}
	return nil
}
