// Package provider defines the execution-provider contract personas are bound
// to, plus a registry holding the closed set of known providers.
package provider

import (
	"context"
	"strings"

	"github.com/aldenhart/agent-runner/internal/persona"
)

// IssueLevel classifies a preflight finding.
type IssueLevel string

const (
	LevelError IssueLevel = "ERROR"
	LevelWarn  IssueLevel = "WARN"
)

// PreflightIssue is a validation finding surfaced before any session is
// created. ERROR issues block (or exclude) the persona depending on the
// configured preflight mode; WARN issues never block.
type PreflightIssue struct {
	Level   IssueLevel
	Message string
	Fix     string
}

// Normalized coerces unknown levels to ERROR so a sloppy provider cannot
// accidentally downgrade a blocking issue.
func (i PreflightIssue) Normalized() PreflightIssue {
	switch IssueLevel(strings.ToUpper(strings.TrimSpace(string(i.Level)))) {
	case LevelWarn:
		i.Level = LevelWarn
	default:
		i.Level = LevelError
	}
	return i
}

// IsError reports whether the issue blocks in strict mode.
func (i PreflightIssue) IsError() bool {
	return i.Normalized().Level == LevelError
}

// RunRequest carries everything a provider needs for one persona run.
type RunRequest struct {
	Prompt      string
	ContextText string
	Persona     persona.Persona
}

// Provider is implemented by every execution backend. Implementations must be
// stateless; one value may serve concurrent persona runs.
type Provider interface {
	Name() string
	Preflight(p persona.Persona) []PreflightIssue
	Run(ctx context.Context, req RunRequest) (string, error)
}
