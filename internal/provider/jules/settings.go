package jules

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aldenhart/agent-runner/internal/persona"
)

// DefaultBaseURL is the production REST endpoint (v1alpha).
const DefaultBaseURL = "https://jules.googleapis.com/v1alpha"

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 20 * time.Minute
	defaultPageSize     = 200
)

// Environment variables consumed by the provider. Each value can also be set
// per persona; persona wins over environment, environment over config.
const (
	EnvAPIKey              = "JULES_API_KEY"
	EnvSource              = "JULES_SOURCE"
	EnvBaseURL             = "JULES_BASE_URL"
	EnvStartingBranch      = "JULES_STARTING_BRANCH"
	EnvRequirePlanApproval = "JULES_REQUIRE_PLAN_APPROVAL"
	EnvAutomationMode      = "JULES_AUTOMATION_MODE"
	EnvTimeoutSeconds      = "JULES_TIMEOUT_S"
	EnvPollIntervalSeconds = "JULES_POLL_INTERVAL_S"

	// EnvCLIStartingBranch is set by the run command when --starting-branch
	// is passed; it outranks every other branch source.
	EnvCLIStartingBranch = "AGENT_RUNNER_STARTING_BRANCH"
)

// Settings is the fully resolved configuration for one session run.
type Settings struct {
	APIKey              string
	BaseURL             string
	Source              string
	StartingBranch      string
	RequirePlanApproval bool
	AutomationMode      string
	PollInterval        time.Duration
	Timeout             time.Duration
	PageSize            int
}

// resolveSettings layers persona overrides, environment values, and config
// defaults into a Settings value. The starting branch is resolved separately
// because it needs the precedence chain plus git auto-detection.
func (p *Provider) resolveSettings(per persona.Persona) (Settings, error) {
	ovr := per.JulesOverrides()
	if ovr == nil {
		ovr = &persona.JulesSettings{}
	}

	apiKey := strings.TrimSpace(os.Getenv(EnvAPIKey))
	if apiKey == "" {
		return Settings{}, fmt.Errorf("jules: missing %s environment variable", EnvAPIKey)
	}

	source := firstNonEmpty(ovr.Source, os.Getenv(EnvSource))
	if source == "" {
		return Settings{}, fmt.Errorf(
			"jules: missing source; set %s (format: sources/{id}) or persona provider_settings.jules.source", EnvSource)
	}

	baseURL := firstNonEmpty(ovr.BaseURL, os.Getenv(EnvBaseURL), p.cfg.BaseURL, DefaultBaseURL)

	branch := p.branchResolver().Resolve(
		os.Getenv(EnvCLIStartingBranch),
		ovr.StartingBranch,
		os.Getenv(EnvStartingBranch),
		p.cfg.DefaultStartingBranch,
	)
	if branch == "" {
		return Settings{}, fmt.Errorf(
			"jules: could not determine starting branch; provide --starting-branch, %s, a persona override, or run inside a git repo",
			EnvStartingBranch)
	}

	requireApproval := false
	if ovr.RequirePlanApproval != nil {
		requireApproval = *ovr.RequirePlanApproval
	} else {
		requireApproval = parseBool(os.Getenv(EnvRequirePlanApproval))
	}

	automation := firstNonEmpty(ovr.AutomationMode, os.Getenv(EnvAutomationMode), automationModeUnspecified)

	timeout := resolveSeconds(ovr.TimeoutSeconds, os.Getenv(EnvTimeoutSeconds), p.cfg.TimeoutSeconds, defaultTimeout)
	poll := resolveSeconds(ovr.PollIntervalSeconds, os.Getenv(EnvPollIntervalSeconds), p.cfg.PollIntervalSeconds, defaultPollInterval)

	return Settings{
		APIKey:              apiKey,
		BaseURL:             strings.TrimRight(baseURL, "/"),
		Source:              source,
		StartingBranch:      branch,
		RequirePlanApproval: requireApproval,
		AutomationMode:      automation,
		PollInterval:        poll,
		Timeout:             timeout,
		PageSize:            defaultPageSize,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// parseBool accepts the truthy spellings 1, true, yes, and y; everything
// else is false.
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}

// resolveSeconds picks the first positive value out of persona seconds, an
// environment string, and config seconds, falling back to a default duration.
func resolveSeconds(personaSeconds float64, envValue string, configSeconds float64, fallback time.Duration) time.Duration {
	if personaSeconds > 0 {
		return secondsToDuration(personaSeconds)
	}
	if trimmed := strings.TrimSpace(envValue); trimmed != "" {
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil && parsed > 0 {
			return secondsToDuration(parsed)
		}
	}
	if configSeconds > 0 {
		return secondsToDuration(configSeconds)
	}
	return fallback
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func (p *Provider) branchResolver() *BranchResolver {
	if p.branches != nil {
		return p.branches
	}
	return NewBranchResolver(p.dir)
}
