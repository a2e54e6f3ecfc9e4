// cmd/agent-runner/main.go
//
// Entry point for the agent-runner CLI.
//
// Flow for `agent-runner run`:
// 1. Load .local environment overlays and the TOML config
// 2. Resolve the persona set (flags, or every enabled persona file)
// 3. Preflight, then execute personas in parallel
// 4. Show progress in the TUI (or plain prints), write artifacts,
//    and optionally post a PR comment

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aldenhart/agent-runner/internal/config"
	"github.com/aldenhart/agent-runner/internal/githubsink"
	"github.com/aldenhart/agent-runner/internal/logging"
	"github.com/aldenhart/agent-runner/internal/persona"
	"github.com/aldenhart/agent-runner/internal/provider"
	"github.com/aldenhart/agent-runner/internal/provider/jules"
	"github.com/aldenhart/agent-runner/internal/runner"
	"github.com/aldenhart/agent-runner/internal/tui"
)

const version = "0.3.0"

var (
	flagConfigPath     string
	flagTask           string
	flagPersonas       []string
	flagContext        string
	flagPRNumber       int
	flagStartingBranch string
	flagNoPreflight    bool
	flagPlain          bool
)

var rootCmd = &cobra.Command{
	Use:           "agent-runner",
	Short:         "Run AI personas against the current repository",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute personas and write their reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		if flagStartingBranch != "" {
			os.Setenv(jules.EnvCLIStartingBranch, flagStartingBranch)
		}

		personas, err := resolvePersonas(env.cfg)
		if err != nil {
			return err
		}

		req := runner.Request{
			Task:        flagTask,
			Personas:    personas,
			ContextMode: flagContext,
			PRNumber:    flagPRNumber,
			Preflight:   !flagNoPreflight,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var result runner.RunResult
		if flagPlain || !stdoutIsTerminal() {
			result, err = runPlain(ctx, env, req)
		} else {
			result, err = runWithTUI(ctx, env, req)
		}
		if err != nil {
			return err
		}

		fmt.Println(result.Summary())
		if env.cfg.App.Output.PrintStdout {
			printReports(result)
		}
		postComment(ctx, env, result)

		failed := 0
		for _, pr := range result.Results {
			if !pr.OK {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d persona(s) failed", failed)
		}
		return nil
	},
}

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Validate persona and provider configuration without running",
	RunE: func(_ *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		if flagStartingBranch != "" {
			os.Setenv(jules.EnvCLIStartingBranch, flagStartingBranch)
		}
		personas, err := resolvePersonas(env.cfg)
		if err != nil {
			return err
		}
		r, err := runner.New(env.cfg, env.registry, runner.WithLogger(env.log))
		if err != nil {
			return err
		}
		outcome, err := r.Preflight(personas)
		if err != nil {
			return err
		}
		if report := outcome.Report(); report != "" {
			fmt.Println(report)
			fmt.Println()
		}
		fmt.Printf("Preflight passed for: %s\n", strings.Join(outcome.Approved, ", "))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete run directories older than the retention window",
	RunE: func(_ *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		r, err := runner.New(env.cfg, env.registry, runner.WithLogger(env.log))
		if err != nil {
			return err
		}
		pruned, err := r.PruneRuns()
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d run(s) older than %s.\n", pruned, r.RetentionCutoff().Format("2006-01-02"))
		return nil
	},
}

var flagLogLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the most recent runner log entries",
	RunE: func(_ *cobra.Command, _ []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		lines := env.log.Tail(flagLogLines)
		if len(lines) == 0 {
			fmt.Println("No log entries yet.")
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent-runner version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("agent-runner " + version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to agent-runner.toml")
	rootCmd.PersistentFlags().StringSliceVar(&flagPersonas, "personas", nil, "personas to run (default: all enabled)")
	rootCmd.PersistentFlags().StringVar(&flagStartingBranch, "starting-branch", "", "branch override for remote sessions")

	runCmd.Flags().StringVar(&flagTask, "task", "", "short task description recorded with the run")
	runCmd.Flags().StringVar(&flagContext, "context", "repo", "context mode: repo, diff, or dir")
	runCmd.Flags().IntVar(&flagPRNumber, "pr-number", 0, "pull request number for the GitHub comment sink")
	runCmd.Flags().BoolVar(&flagNoPreflight, "no-preflight", false, "skip preflight validation")
	runCmd.Flags().BoolVar(&flagPlain, "plain", false, "disable the TUI and print plain progress lines")
	logsCmd.Flags().IntVar(&flagLogLines, "lines", 50, "number of log lines to show")

	rootCmd.AddCommand(runCmd, preflightCmd, pruneCmd, logsCmd, versionCmd)
}

// environment bundles everything the subcommands share.
type environment struct {
	projectDir string
	cfg        *config.Config
	log        *logging.Logger
	registry   *provider.Registry
}

func setup() (*environment, error) {
	projectDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	if err := config.LoadLocalEnv(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	var cfg *config.Config
	if flagConfigPath != "" {
		cfg, err = config.NewConfigFromFile(projectDir, flagConfigPath)
	} else {
		cfg, err = config.NewConfig(projectDir)
	}
	if err != nil {
		return nil, err
	}

	if err := config.InitRunnerDir(projectDir); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogFilePath())
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry()
	registry.MustRegister("stub", func() (provider.Provider, error) {
		return provider.NewStub(), nil
	})
	registry.MustRegister("jules", func() (provider.Provider, error) {
		return jules.New(cfg.App.Jules, projectDir, jules.WithLogger(log)), nil
	})

	return &environment{projectDir: projectDir, cfg: cfg, log: log, registry: registry}, nil
}

func resolvePersonas(cfg *config.Config) ([]string, error) {
	if len(flagPersonas) > 0 {
		return flagPersonas, nil
	}
	names, err := persona.List(cfg.PersonasDir())
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no personas found in %s; create personas/<name>.yaml first", cfg.PersonasDir())
	}
	return names, nil
}

func runWithTUI(ctx context.Context, env *environment, req runner.Request) (runner.RunResult, error) {
	events, withEvents := tui.EventBridge(len(req.Personas) * 2)
	r, err := runner.New(env.cfg, env.registry, runner.WithLogger(env.log), withEvents)
	if err != nil {
		return runner.RunResult{}, err
	}
	return tui.Run(ctx, r, req, events)
}

func runPlain(ctx context.Context, env *environment, req runner.Request) (runner.RunResult, error) {
	r, err := runner.New(env.cfg, env.registry,
		runner.WithLogger(env.log),
		runner.WithEvents(func(e runner.Event) {
			switch e.Kind {
			case runner.EventStarted:
				fmt.Printf("-> %s started\n", e.Persona)
			case runner.EventSkipped:
				fmt.Printf("-- %s skipped by preflight\n", e.Persona)
			case runner.EventFinished:
				if e.Result != nil && e.Result.OK {
					fmt.Printf("<- %s ok (%s)\n", e.Persona, e.Result.OutputPath)
				} else if e.Result != nil {
					fmt.Printf("<- %s FAILED: %s\n", e.Persona, e.Result.Error)
				}
			}
		}),
	)
	if err != nil {
		return runner.RunResult{}, err
	}
	return r.Run(ctx, req)
}

func printReports(result runner.RunResult) {
	for _, pr := range result.Results {
		if !pr.OK || pr.OutputPath == "" {
			continue
		}
		data, err := os.ReadFile(pr.OutputPath)
		if err != nil {
			continue
		}
		fmt.Printf("\n─── %s ───\n%s", pr.Persona, data)
	}
}

func postComment(ctx context.Context, env *environment, result runner.RunResult) {
	if !env.cfg.App.Github.Enabled {
		return
	}
	if flagPRNumber == 0 && env.cfg.App.Github.DefaultPRNumber == 0 {
		return
	}
	sink := githubsink.New(env.cfg.App.Github)
	if err := sink.Comment(ctx, flagPRNumber, result); err != nil {
		env.log.Warn("github comment failed: %v", err)
		fmt.Fprintf(os.Stderr, "warning: github comment failed: %v\n", err)
		return
	}
	fmt.Println("Posted run report to the pull request.")
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
