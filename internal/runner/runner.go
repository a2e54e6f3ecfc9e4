// Package runner executes approved personas as independent units of work and
// persists their artifacts under .agent-runner/runs/<run-id>/. Personas share
// nothing; one persona's failure or timeout never aborts its siblings.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aldenhart/agent-runner/internal/config"
	"github.com/aldenhart/agent-runner/internal/logging"
	"github.com/aldenhart/agent-runner/internal/persona"
	"github.com/aldenhart/agent-runner/internal/provider"
	"github.com/aldenhart/agent-runner/internal/repocontext"
)

// Runner orchestrates persona runs for one project.
type Runner struct {
	cfg      *config.Config
	registry *provider.Registry
	log      *logging.Logger
	events   func(Event)
	now      func() time.Time
}

// Option customizes the runner instance.
type Option func(*Runner)

// WithLogger attaches the runner log.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithEvents installs an observer for persona lifecycle events. The callback
// may be invoked from multiple goroutines.
func WithEvents(events func(Event)) Option {
	return func(r *Runner) { r.events = events }
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.now = clock
		}
	}
}

// New wires a runner to its configuration and provider registry.
func New(cfg *config.Config, registry *provider.Registry, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("runner: config is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("runner: provider registry is required")
	}
	r := &Runner{
		cfg:      cfg,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Request describes one invocation of Run.
type Request struct {
	Task        string
	Personas    []string
	ContextMode string
	PRNumber    int
	Preflight   bool
}

type runMetadata struct {
	RunID       string   `json:"run_id"`
	Task        string   `json:"task"`
	Personas    []string `json:"personas"`
	ContextMode string   `json:"context_mode"`
	Parallelism int      `json:"parallelism"`
	PRNumber    int      `json:"pr_number,omitempty"`
	Preflight   bool     `json:"preflight"`
}

// Run validates, executes, and persists one batch of personas. Preflight (when
// enabled) happens before any run directory exists; in strict mode a blocking
// issue aborts with nothing written to disk.
func (r *Runner) Run(ctx context.Context, req Request) (RunResult, error) {
	approved := append([]string{}, req.Personas...)
	if req.Preflight {
		outcome, err := r.Preflight(req.Personas)
		if err != nil {
			return RunResult{}, err
		}
		approved = outcome.Approved
		if len(approved) == 0 {
			return RunResult{}, fmt.Errorf("runner: preflight left no personas to run")
		}
		for name := range outcome.Issues {
			r.log.Warn("preflight issues for persona %s", name)
		}
		approvedSet := make(map[string]bool, len(approved))
		for _, name := range approved {
			approvedSet[name] = true
		}
		for _, name := range req.Personas {
			if !approvedSet[name] {
				r.emit(Event{Kind: EventSkipped, Persona: name})
				r.log.Warn("persona %s skipped by preflight", name)
			}
		}
	}

	if err := config.InitRunnerDir(r.cfg.ProjectDir); err != nil {
		return RunResult{}, fmt.Errorf("runner: init project dir: %w", err)
	}

	runID := r.newRunID()
	runDir := filepath.Join(r.cfg.RunsDir(), runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return RunResult{}, fmt.Errorf("runner: create run dir: %w", err)
	}
	if err := r.writeRunMetadata(runDir, runID, req, approved); err != nil {
		return RunResult{}, err
	}

	payload, err := repocontext.Build(r.cfg.ProjectDir, req.ContextMode)
	if err != nil {
		return RunResult{}, fmt.Errorf("runner: build context: %w", err)
	}

	parallelism := r.cfg.App.Execution.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	r.log.Info("run %s started: personas=%v parallelism=%d context=%s", runID, approved, parallelism, payload.Mode)

	results := make([]PersonaResult, len(approved))
	var group errgroup.Group
	group.SetLimit(parallelism)
	for i, name := range approved {
		i, name := i, name
		group.Go(func() error {
			results[i] = r.runOne(ctx, runDir, name, payload)
			return nil
		})
	}
	// Worker errors are captured per persona; the group never fails.
	_ = group.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Persona < results[j].Persona })

	if r.cfg.App.Retention.Enabled {
		if pruned, err := r.PruneRuns(); err != nil {
			r.log.Warn("retention prune failed: %v", err)
		} else if pruned > 0 {
			r.log.Info("retention pruned %d old run(s)", pruned)
		}
	}

	result := RunResult{RunID: runID, RunDir: runDir, Results: results}
	r.log.Info("run %s finished: %s", runID, result.Summary())
	return result, nil
}

// runOne executes a single persona and converts any failure into an error
// artifact; it never propagates an error to the caller.
func (r *Runner) runOne(ctx context.Context, runDir, name string, payload repocontext.Payload) PersonaResult {
	r.emit(Event{Kind: EventStarted, Persona: name})

	personaDir := filepath.Join(runDir, "personas", name)
	result := PersonaResult{Persona: name}
	if err := os.MkdirAll(personaDir, 0o755); err != nil {
		result.Error = fmt.Sprintf("create persona dir: %v", err)
		r.finish(&result)
		return result
	}

	output, err := r.execute(ctx, name, payload)
	if err != nil {
		result.OutputPath = filepath.Join(personaDir, "error.json")
		result.Error = err.Error()
		r.log.Error("persona %s failed: %v", name, err)
		body, marshalErr := json.MarshalIndent(map[string]string{"error": err.Error()}, "", "  ")
		if marshalErr == nil {
			_ = os.WriteFile(result.OutputPath, body, 0o644)
		}
		r.finish(&result)
		return result
	}

	result.OK = true
	result.OutputPath = filepath.Join(personaDir, "output.md")
	if writeErr := os.WriteFile(result.OutputPath, []byte(output), 0o644); writeErr != nil {
		result.OK = false
		result.Error = fmt.Sprintf("write output: %v", writeErr)
	}
	r.finish(&result)
	return result
}

func (r *Runner) execute(ctx context.Context, name string, payload repocontext.Payload) (string, error) {
	p, err := persona.Load(r.cfg.PersonasDir(), name)
	if err != nil {
		return "", err
	}
	prov, err := r.registry.Resolve(p.Provider)
	if err != nil {
		return "", err
	}
	return prov.Run(ctx, provider.RunRequest{
		Prompt:      p.Prompt,
		ContextText: payload.Text,
		Persona:     p,
	})
}

func (r *Runner) writeRunMetadata(runDir, runID string, req Request, approved []string) error {
	meta := runMetadata{
		RunID:       runID,
		Task:        req.Task,
		Personas:    approved,
		ContextMode: req.ContextMode,
		Parallelism: r.cfg.App.Execution.Parallelism,
		PRNumber:    req.PRNumber,
		Preflight:   req.Preflight,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("runner: encode run metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "run.json"), data, 0o644); err != nil {
		return fmt.Errorf("runner: write run metadata: %w", err)
	}
	return nil
}

// newRunID combines a sortable timestamp with a short unique suffix so
// concurrent runs never collide.
func (r *Runner) newRunID() string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return r.now().Format("20060102-150405") + "-" + suffix
}

func (r *Runner) emit(event Event) {
	if r.events != nil {
		r.events(event)
	}
}

func (r *Runner) finish(result *PersonaResult) {
	r.emit(Event{Kind: EventFinished, Persona: result.Persona, Result: result})
}
