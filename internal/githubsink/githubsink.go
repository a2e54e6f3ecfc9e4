// Package githubsink posts run summaries as pull request comments through
// the gh CLI. It is an optional sink; a missing gh binary surfaces as an
// ordinary error and never aborts a run.
package githubsink

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/aldenhart/agent-runner/internal/config"
	"github.com/aldenhart/agent-runner/internal/runner"
)

const commandTimeout = 30 * time.Second

// runCommand is swapped out by tests; production always shells out to gh.
type runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)

// Sink publishes persona run results to a GitHub pull request.
type Sink struct {
	cfg config.GithubConfig
	run runCommand
}

// New returns a sink configured from the [github] section.
func New(cfg config.GithubConfig) *Sink {
	return &Sink{
		cfg: cfg,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Comment posts one comment summarising the run on the given PR. A zero
// prNumber falls back to the configured default; if neither is set the sink
// refuses with an error rather than guessing.
func (s *Sink) Comment(ctx context.Context, prNumber int, result runner.RunResult) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("githubsink: [github] is not enabled")
	}
	if prNumber == 0 {
		prNumber = s.cfg.DefaultPRNumber
	}
	if prNumber <= 0 {
		return fmt.Errorf("githubsink: no pull request number configured")
	}

	args := []string{"pr", "comment", fmt.Sprintf("%d", prNumber), "--body", FormatComment(result)}
	if s.cfg.Repo != "" {
		args = append(args, "--repo", s.cfg.Repo)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	out, err := s.run(ctx, "gh", args...)
	if err != nil {
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			return fmt.Errorf("githubsink: gh pr comment: %s: %w", trimmed, err)
		}
		return fmt.Errorf("githubsink: gh pr comment: %w", err)
	}
	return nil
}

// FormatComment renders the markdown body posted to the pull request. Results
// arrive already sorted by persona name, so the comment is deterministic for
// a given run.
func FormatComment(result runner.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Agent-Runner report `%s`\n\n", result.RunID)
	fmt.Fprintf(&b, "| Persona | Status | Detail |\n|---|---|---|\n")
	for _, pr := range result.Results {
		if pr.OK {
			fmt.Fprintf(&b, "| %s | ok | `%s` |\n", pr.Persona, pr.OutputPath)
			continue
		}
		fmt.Fprintf(&b, "| %s | failed | %s |\n", pr.Persona, sanitizeCell(pr.Error))
	}
	fmt.Fprintf(&b, "\n%s\n", result.Summary())
	return b.String()
}

// sanitizeCell keeps persona errors on one table row.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
