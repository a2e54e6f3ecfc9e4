package jules

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aldenhart/agent-runner/internal/config"
	"github.com/aldenhart/agent-runner/internal/persona"
	"github.com/aldenhart/agent-runner/internal/provider"
)

func boolPtr(v bool) *bool { return &v }

// clearJulesEnv keeps provider tests hermetic against the host environment.
func clearJulesEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvAPIKey, EnvSource, EnvBaseURL, EnvStartingBranch,
		EnvRequirePlanApproval, EnvAutomationMode, EnvTimeoutSeconds,
		EnvPollIntervalSeconds, EnvCLIStartingBranch,
	} {
		t.Setenv(name, "")
	}
}

func julesPersona(baseURL string, settings persona.JulesSettings) persona.Persona {
	settings.BaseURL = baseURL
	if settings.Source == "" {
		settings.Source = "sources/123"
	}
	if settings.StartingBranch == "" {
		settings.StartingBranch = "main"
	}
	if settings.PollIntervalSeconds == 0 {
		settings.PollIntervalSeconds = 0.001
	}
	if settings.TimeoutSeconds == 0 {
		settings.TimeoutSeconds = 5
	}
	return persona.Persona{
		Name:     "security",
		Provider: "jules",
		Prompt:   "Review the repository.",
		Jules:    &settings,
	}
}

// sessionServer simulates the remote API through a scripted state sequence.
type sessionServer struct {
	mu       sync.Mutex
	states   []string
	polls    int
	approves int
	created  map[string]any
}

func (s *sessionServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			if err := json.NewDecoder(r.Body).Decode(&s.created); err != nil {
				t.Errorf("decode create body: %v", err)
			}
			json.NewEncoder(w).Encode(Session{Name: "sessions/abc", State: "CREATED"})
		case r.Method == http.MethodPost && r.URL.Path == "/sessions/abc:approvePlan":
			s.approves++
			w.Write([]byte("{}"))
		case r.Method == http.MethodGet && r.URL.Path == "/sessions/abc/activities":
			json.NewEncoder(w).Encode(activitiesPage{Activities: []Activity{
				{ID: "2", CreateTime: "2026-01-01T00:00:01Z", AgentMessaged: &AgentMessaged{AgentMessage: "All done."}},
				{ID: "1", CreateTime: "2026-01-01T00:00:00Z", ProgressUpdated: &ProgressUpdated{Title: "Scanning"}},
			}})
		case r.Method == http.MethodGet && r.URL.Path == "/sessions/abc":
			state := s.states[len(s.states)-1]
			if s.polls < len(s.states) {
				state = s.states[s.polls]
			}
			s.polls++
			json.NewEncoder(w).Encode(Session{Name: "sessions/abc", State: state})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestRunPollsToCompletionAndRenders(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	server := &sessionServer{states: []string{"RUNNING", "RUNNING", StateCompleted}}
	ts := httptest.NewServer(server.handler(t))
	defer ts.Close()

	p := New(config.JulesConfig{}, t.TempDir())
	report, err := p.Run(context.Background(), provider.RunRequest{
		Prompt:      "Review the repository.",
		ContextText: "Repository root entries:\n- main.go",
		Persona:     julesPersona(ts.URL, persona.JulesSettings{}),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if server.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", server.polls)
	}
	if !strings.Contains(report, "- **State:** `COMPLETED`") {
		t.Fatalf("expected completed state in report:\n%s", report)
	}
	// Activities arrive unsorted; the report must reflect sorted order.
	if strings.Index(report, "Scanning") > strings.Index(report, "All done.") {
		t.Fatalf("expected progress before agent message:\n%s", report)
	}
	prompt, _ := server.created["prompt"].(string)
	if !strings.Contains(prompt, promptSeparator) {
		t.Fatalf("expected composed prompt with separator, got %q", prompt)
	}
	if !strings.Contains(prompt, "Repository root entries:") {
		t.Fatalf("expected context text in prompt, got %q", prompt)
	}
}

func TestRunApprovesPlanAndKeepsPolling(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	server := &sessionServer{states: []string{"RUNNING", StateAwaitingPlanApproval, "RUNNING", StateCompleted}}
	ts := httptest.NewServer(server.handler(t))
	defer ts.Close()

	p := New(config.JulesConfig{}, t.TempDir())
	_, err := p.Run(context.Background(), provider.RunRequest{
		Prompt:  "Review.",
		Persona: julesPersona(ts.URL, persona.JulesSettings{RequirePlanApproval: boolPtr(true)}),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if server.approves != 1 {
		t.Fatalf("expected one approve call, got %d", server.approves)
	}
}

func TestRunApproveFailureDoesNotAbortPolling(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	var polls int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			json.NewEncoder(w).Encode(Session{Name: "sessions/abc", State: "CREATED"})
		case r.Method == http.MethodPost && r.URL.Path == "/sessions/abc:approvePlan":
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodGet && r.URL.Path == "/sessions/abc/activities":
			json.NewEncoder(w).Encode(activitiesPage{})
		case r.Method == http.MethodGet && r.URL.Path == "/sessions/abc":
			polls++
			state := StateAwaitingPlanApproval
			if polls >= 3 {
				state = StateCompleted
			}
			json.NewEncoder(w).Encode(Session{Name: "sessions/abc", State: state})
		}
	}))
	defer ts.Close()

	p := New(config.JulesConfig{}, t.TempDir())
	report, err := p.Run(context.Background(), provider.RunRequest{
		Prompt:  "Review.",
		Persona: julesPersona(ts.URL, persona.JulesSettings{RequirePlanApproval: boolPtr(true)}),
	})
	if err != nil {
		t.Fatalf("Run returned error despite best-effort approval: %v", err)
	}
	if !strings.Contains(report, emptyReportLine) {
		t.Fatalf("expected placeholder report:\n%s", report)
	}
}

func TestRunTimeoutCarriesLastSnapshot(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	server := &sessionServer{states: []string{"RUNNING"}}
	ts := httptest.NewServer(server.handler(t))
	defer ts.Close()

	p := New(config.JulesConfig{}, t.TempDir())
	_, err := p.Run(context.Background(), provider.RunRequest{
		Prompt: "Review.",
		Persona: julesPersona(ts.URL, persona.JulesSettings{
			TimeoutSeconds:      0.05,
			PollIntervalSeconds: 0.01,
		}),
	})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.LastSession == nil || timeoutErr.LastSession.State != "RUNNING" {
		t.Fatalf("expected last snapshot with RUNNING state, got %+v", timeoutErr.LastSession)
	}
	if timeoutErr.SessionName != "sessions/abc" {
		t.Fatalf("unexpected session name %q", timeoutErr.SessionName)
	}
}

func TestRunSurfacesTransportErrorOnCreate(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad source"))
	}))
	defer ts.Close()

	p := New(config.JulesConfig{}, t.TempDir())
	_, err := p.Run(context.Background(), provider.RunRequest{
		Prompt:  "Review.",
		Persona: julesPersona(ts.URL, persona.JulesSettings{}),
	})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.Status != http.StatusBadRequest || transportErr.Body != "bad source" {
		t.Fatalf("unexpected transport error %+v", transportErr)
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	clearJulesEnv(t)
	p := New(config.JulesConfig{}, t.TempDir())
	_, err := p.Run(context.Background(), provider.RunRequest{
		Prompt:  "Review.",
		Persona: julesPersona("http://unused.test", persona.JulesSettings{}),
	})
	if err == nil || !strings.Contains(err.Error(), EnvAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestPreflightReportsMissingSettings(t *testing.T) {
	clearJulesEnv(t)
	p := New(config.JulesConfig{}, t.TempDir(),
		WithBranchResolver(fixedDetect("")))
	issues := p.Preflight(persona.Persona{Name: "security", Provider: "jules", Prompt: "x"})
	var messages []string
	for _, issue := range issues {
		if !issue.IsError() {
			t.Fatalf("expected only errors, got %+v", issue)
		}
		messages = append(messages, issue.Message)
	}
	joined := strings.Join(messages, "\n")
	for _, want := range []string{"JULES_API_KEY", "JULES_SOURCE", "starting branch"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected issue mentioning %q, got:\n%s", want, joined)
		}
	}
}

func TestPreflightValidatesSourceFormat(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvSource, "bad format!")
	p := New(config.JulesConfig{}, t.TempDir(),
		WithBranchResolver(fixedDetect("main")))
	issues := p.Preflight(persona.Persona{Name: "security", Provider: "jules", Prompt: "x"})
	if len(issues) != 1 || !strings.Contains(issues[0].Message, "Invalid JULES_SOURCE format") {
		t.Fatalf("expected single source-format error, got %+v", issues)
	}
}

func TestPreflightAutomationModeAdvisoryIsWarn(t *testing.T) {
	clearJulesEnv(t)
	t.Setenv(EnvAPIKey, "test-key")
	t.Setenv(EnvSource, "sources/123")
	t.Setenv(EnvAutomationMode, "AUTO_CREATE_PR")
	p := New(config.JulesConfig{}, t.TempDir(),
		WithBranchResolver(fixedDetect("main")))
	issues := p.Preflight(persona.Persona{Name: "security", Provider: "jules", Prompt: "x"})
	if len(issues) != 1 {
		t.Fatalf("expected a single advisory, got %+v", issues)
	}
	if issues[0].IsError() {
		t.Fatalf("automation advisory must not block: %+v", issues[0])
	}
}

func TestPreflightSourcePatternAcceptsCommonCharset(t *testing.T) {
	for _, valid := range []string{"sources/123", "sources/org/repo-1", "sources/a_b-c"} {
		if !sourcePattern.MatchString(valid) {
			t.Fatalf("expected %q to be valid", valid)
		}
	}
	for _, invalid := range []string{"source/123", "sources/", "sources/abc!", " sources/123"} {
		if sourcePattern.MatchString(invalid) {
			t.Fatalf("expected %q to be invalid", invalid)
		}
	}
}
