// Package jules drives a remote agent session to completion: create the
// session, poll until a terminal state (optionally approving a plan
// checkpoint mid-flight), then reduce the paginated activity log into a
// deterministic markdown report.
package jules

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aldenhart/agent-runner/internal/config"
	"github.com/aldenhart/agent-runner/internal/logging"
	"github.com/aldenhart/agent-runner/internal/persona"
	"github.com/aldenhart/agent-runner/internal/provider"
)

// promptSeparator sits between the persona prompt and the local context text.
const promptSeparator = "----\nLOCAL CONTEXT (from Agent-Runner)\n----"

var sourcePattern = regexp.MustCompile(`^sources/[A-Za-z0-9_/-]+$`)

// Provider implements provider.Provider against the Jules REST API.
type Provider struct {
	cfg      config.JulesConfig
	dir      string
	log      *logging.Logger
	branches *BranchResolver
	now      func() time.Time
}

// Option customizes the provider instance.
type Option func(*Provider)

// WithLogger attaches a runner log for best-effort diagnostics.
func WithLogger(log *logging.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithBranchResolver injects a resolver (primarily for tests).
func WithBranchResolver(r *BranchResolver) Option {
	return func(p *Provider) {
		if r != nil {
			p.branches = r
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// New builds a Jules provider rooted at the given project directory.
func New(cfg config.JulesConfig, projectDir string, opts ...Option) *Provider {
	p := &Provider{
		cfg: cfg,
		dir: projectDir,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "jules" }

// Preflight validates everything a run would need before any session is
// created. ERROR issues block in strict mode; the automation-mode advisory is
// WARN only and never blocks.
func (p *Provider) Preflight(per persona.Persona) []provider.PreflightIssue {
	var issues []provider.PreflightIssue
	ovr := per.JulesOverrides()
	if ovr == nil {
		ovr = &persona.JulesSettings{}
	}

	if strings.TrimSpace(os.Getenv(EnvAPIKey)) == "" {
		issues = append(issues, provider.PreflightIssue{
			Level:   provider.LevelError,
			Message: "Missing JULES_API_KEY.",
			Fix:     `export JULES_API_KEY="..."`,
		})
	}

	source := firstNonEmpty(ovr.Source, os.Getenv(EnvSource))
	if source == "" {
		issues = append(issues, provider.PreflightIssue{
			Level:   provider.LevelError,
			Message: "Missing JULES_SOURCE (expected format sources/{id}).",
			Fix:     `export JULES_SOURCE="sources/123"`,
		})
	} else if !sourcePattern.MatchString(source) {
		issues = append(issues, provider.PreflightIssue{
			Level:   provider.LevelError,
			Message: fmt.Sprintf("Invalid JULES_SOURCE format: %q (expected sources/{id}).", source),
			Fix:     "Set JULES_SOURCE like: sources/123",
		})
	}

	branch := p.branchResolver().Resolve(
		os.Getenv(EnvCLIStartingBranch),
		ovr.StartingBranch,
		os.Getenv(EnvStartingBranch),
		p.cfg.DefaultStartingBranch,
	)
	if branch == "" {
		issues = append(issues, provider.PreflightIssue{
			Level:   provider.LevelError,
			Message: "Could not determine starting branch (set --starting-branch, JULES_STARTING_BRANCH, persona override, or run inside a git repo).",
			Fix:     `Try: --starting-branch auto  OR  export JULES_STARTING_BRANCH="main"`,
		})
	}

	automation := firstNonEmpty(ovr.AutomationMode, os.Getenv(EnvAutomationMode), automationModeUnspecified)
	if automation == automationModeAutoCreatePR {
		issues = append(issues, provider.PreflightIssue{
			Level:   provider.LevelWarn,
			Message: "JULES_AUTOMATION_MODE=AUTO_CREATE_PR may create PRs. Consider using AUTOMATION_MODE_UNSPECIFIED by default.",
			Fix:     `export JULES_AUTOMATION_MODE="AUTOMATION_MODE_UNSPECIFIED"`,
		})
	}

	return issues
}

// Run implements provider.Provider: one full session lifecycle ending in a
// rendered report.
func (p *Provider) Run(ctx context.Context, req provider.RunRequest) (string, error) {
	settings, err := p.resolveSettings(req.Persona)
	if err != nil {
		return "", err
	}

	composed := strings.TrimSpace(req.Prompt) + "\n\n" + promptSeparator + "\n" + strings.TrimSpace(req.ContextText) + "\n"

	client := NewClient(settings.BaseURL, settings.APIKey)
	created, err := client.CreateSession(ctx, CreateSessionRequest{
		Prompt:              composed,
		Source:              settings.Source,
		StartingBranch:      settings.StartingBranch,
		RequirePlanApproval: settings.RequirePlanApproval,
		AutomationMode:      settings.AutomationMode,
	})
	if err != nil {
		return "", err
	}
	p.log.Info("jules: created session %s (branch %s)", created.Name, settings.StartingBranch)

	final, err := p.pollSession(ctx, client, settings, created.Name)
	if err != nil {
		return "", err
	}

	activities, err := client.ListActivities(ctx, created.Name, settings.PageSize)
	if err != nil {
		return "", err
	}
	SortActivities(activities)
	return Render(final, activities), nil
}

// pollSession re-fetches the session until it reaches a terminal state or the
// absolute deadline passes. When plan approval is configured and the session
// parks at the approval checkpoint, the approve call is fired best-effort and
// polling continues; a failed approval is retried on the next iteration.
func (p *Provider) pollSession(ctx context.Context, client *Client, settings Settings, sessionName string) (*Session, error) {
	deadline := p.now().Add(settings.Timeout)
	var last *Session
	for p.now().Before(deadline) {
		session, err := client.GetSession(ctx, sessionName)
		if err != nil {
			return nil, err
		}
		last = session
		if session.Terminal() {
			return session, nil
		}
		if settings.RequirePlanApproval && session.State == StateAwaitingPlanApproval {
			if err := client.ApprovePlan(ctx, sessionName); err != nil {
				p.log.Warn("jules: approve plan for %s failed: %v", sessionName, err)
			}
		}
		if err := wait(ctx, settings.PollInterval); err != nil {
			return nil, err
		}
	}
	return nil, &TimeoutError{SessionName: sessionName, LastSession: last}
}

// wait sleeps for the poll interval but returns early if the context ends.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
