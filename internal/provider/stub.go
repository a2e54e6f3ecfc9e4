package provider

import (
	"context"
	"fmt"

	"github.com/aldenhart/agent-runner/internal/persona"
)

// Stub is a placeholder provider that echoes its inputs. It keeps the wiring
// exercisable without network access and backs the runner tests.
type Stub struct{}

// NewStub returns the stub provider.
func NewStub() *Stub {
	return &Stub{}
}

// Name implements Provider.
func (s *Stub) Name() string { return "stub" }

// Preflight implements Provider. The stub has nothing to validate.
func (s *Stub) Preflight(_ persona.Persona) []PreflightIssue {
	return nil
}

// Run implements Provider.
func (s *Stub) Run(_ context.Context, req RunRequest) (string, error) {
	prompt := req.Prompt
	if len(prompt) > 800 {
		prompt = prompt[:800]
	}
	return fmt.Sprintf(
		"# %s\n\n## NOTE\nThis is the stub provider output. Configure a real provider to produce actual findings.\n\n## Prompt (truncated)\n%s\n\n## Context\n%s\n",
		req.Persona.Title(), prompt, req.ContextText,
	), nil
}
