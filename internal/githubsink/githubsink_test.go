package githubsink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aldenhart/agent-runner/internal/config"
	"github.com/aldenhart/agent-runner/internal/runner"
)

func sampleResult() runner.RunResult {
	return runner.RunResult{
		RunID: "20260831-120000-abcd",
		Results: []runner.PersonaResult{
			{Persona: "security", OK: false, Error: "session timed out\nafter 20m"},
			{Persona: "ux", OK: true, OutputPath: "/tmp/run/personas/ux/output.md"},
		},
	}
}

func TestCommentInvokesGh(t *testing.T) {
	var gotName string
	var gotArgs []string
	s := New(config.GithubConfig{Enabled: true, Repo: "acme/widgets"})
	s.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return nil, nil
	}

	if err := s.Comment(context.Background(), 42, sampleResult()); err != nil {
		t.Fatalf("Comment returned error: %v", err)
	}
	if gotName != "gh" {
		t.Fatalf("expected gh invocation, got %q", gotName)
	}
	want := []string{"pr", "comment", "42", "--body"}
	for i, arg := range want {
		if gotArgs[i] != arg {
			t.Fatalf("unexpected args %v", gotArgs)
		}
	}
	if gotArgs[len(gotArgs)-2] != "--repo" || gotArgs[len(gotArgs)-1] != "acme/widgets" {
		t.Fatalf("expected --repo flag, got %v", gotArgs)
	}
}

func TestCommentFallsBackToDefaultPR(t *testing.T) {
	var gotArgs []string
	s := New(config.GithubConfig{Enabled: true, DefaultPRNumber: 7})
	s.run = func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return nil, nil
	}
	if err := s.Comment(context.Background(), 0, sampleResult()); err != nil {
		t.Fatalf("Comment returned error: %v", err)
	}
	if gotArgs[2] != "7" {
		t.Fatalf("expected default PR number, got %v", gotArgs)
	}
}

func TestCommentRequiresConfiguration(t *testing.T) {
	s := New(config.GithubConfig{Enabled: false})
	if err := s.Comment(context.Background(), 42, sampleResult()); err == nil {
		t.Fatalf("expected error when sink disabled")
	}

	s = New(config.GithubConfig{Enabled: true})
	if err := s.Comment(context.Background(), 0, sampleResult()); err == nil {
		t.Fatalf("expected error without a PR number")
	}
}

func TestCommentSurfacesGhFailure(t *testing.T) {
	s := New(config.GithubConfig{Enabled: true})
	ghErr := errors.New("exit status 1")
	s.run = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte("HTTP 404: Not Found\n"), ghErr
	}
	err := s.Comment(context.Background(), 42, sampleResult())
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Fatalf("expected gh output in error, got %v", err)
	}
	if !errors.Is(err, ghErr) {
		t.Fatalf("expected exec error to be wrapped, got %v", err)
	}
}

func TestCommentKeepsExecErrorWhenOutputEmpty(t *testing.T) {
	s := New(config.GithubConfig{Enabled: true})
	ghErr := errors.New(`exec: "gh": executable file not found in $PATH`)
	s.run = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return nil, ghErr
	}
	err := s.Comment(context.Background(), 42, sampleResult())
	if err == nil || !strings.Contains(err.Error(), "executable file not found") {
		t.Fatalf("expected exec failure reason in error, got %v", err)
	}
	if !errors.Is(err, ghErr) {
		t.Fatalf("expected exec error to be wrapped, got %v", err)
	}
}

func TestFormatComment(t *testing.T) {
	body := FormatComment(sampleResult())
	if !strings.Contains(body, "## Agent-Runner report `20260831-120000-abcd`") {
		t.Fatalf("missing header:\n%s", body)
	}
	if !strings.Contains(body, "| ux | ok |") {
		t.Fatalf("missing success row:\n%s", body)
	}
	if !strings.Contains(body, "| security | failed | session timed out after 20m |") {
		t.Fatalf("expected newline-flattened failure row:\n%s", body)
	}
	if !strings.Contains(body, "ok=1/2") {
		t.Fatalf("missing summary line:\n%s", body)
	}
}
