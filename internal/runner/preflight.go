package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aldenhart/agent-runner/internal/persona"
	"github.com/aldenhart/agent-runner/internal/provider"
)

// PreflightOutcome reports which personas may run and why others may not.
type PreflightOutcome struct {
	Approved []string
	Issues   map[string][]provider.PreflightIssue
}

// HasBlockingIssues reports whether any persona surfaced an ERROR.
func (o PreflightOutcome) HasBlockingIssues() bool {
	for _, issues := range o.Issues {
		for _, issue := range issues {
			if issue.IsError() {
				return true
			}
		}
	}
	return false
}

// Report renders the combined findings, grouped and sorted by persona name.
func (o PreflightOutcome) Report() string {
	if len(o.Issues) == 0 {
		return ""
	}
	names := make([]string, 0, len(o.Issues))
	for name := range o.Issues {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	lines = append(lines, "Preflight failed.", "")
	for _, name := range names {
		for _, issue := range o.Issues[name] {
			normalized := issue.Normalized()
			lines = append(lines, fmt.Sprintf("- %s: %s %s", name, normalized.Level, normalized.Message))
			if normalized.Fix != "" {
				lines = append(lines, fmt.Sprintf("  Fix: %s", normalized.Fix))
			}
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// Preflight validates every requested persona before any run directory is
// created. Personas whose provider cannot even be resolved are treated as a
// blocking ERROR for that persona.
//
// strict  -> any ERROR aborts the whole batch (zero approved personas)
// lenient -> personas with an ERROR are excluded; WARN never blocks
func (r *Runner) Preflight(personas []string) (PreflightOutcome, error) {
	outcome := PreflightOutcome{Issues: map[string][]provider.PreflightIssue{}}

	for _, name := range personas {
		issues, err := r.preflightOne(name)
		if err != nil {
			issues = append(issues, provider.PreflightIssue{
				Level:   provider.LevelError,
				Message: err.Error(),
			})
		}
		hasError := false
		var normalized []provider.PreflightIssue
		for _, issue := range issues {
			n := issue.Normalized()
			normalized = append(normalized, n)
			if n.Level == provider.LevelError {
				hasError = true
			}
		}
		if len(normalized) > 0 {
			outcome.Issues[name] = normalized
		}
		if !hasError {
			outcome.Approved = append(outcome.Approved, name)
		}
	}

	if !outcome.HasBlockingIssues() {
		return outcome, nil
	}
	if r.cfg.App.Preflight.Mode == "strict" {
		outcome.Approved = nil
		return outcome, fmt.Errorf("%s", outcome.Report())
	}
	if len(outcome.Approved) == 0 {
		return outcome, fmt.Errorf("%s", outcome.Report())
	}
	return outcome, nil
}

func (r *Runner) preflightOne(name string) ([]provider.PreflightIssue, error) {
	p, err := persona.Load(r.cfg.PersonasDir(), name)
	if err != nil {
		return nil, err
	}
	prov, err := r.registry.Resolve(p.Provider)
	if err != nil {
		return nil, err
	}
	return prov.Preflight(p), nil
}
