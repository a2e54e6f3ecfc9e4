package jules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// perRequestTimeout bounds one HTTP call. It is independent of the overall
// session timeout enforced by the poll loop.
const perRequestTimeout = 60 * time.Second

// Client issues authenticated JSON requests against the session API. It keeps
// no state between calls beyond the shared http.Client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client for the given base URL and credential.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: perRequestTimeout},
	}
}

// CreateSessionRequest is the payload for CreateSession.
type CreateSessionRequest struct {
	Prompt              string
	Source              string
	StartingBranch      string
	RequirePlanApproval bool
	AutomationMode      string
}

type createSessionBody struct {
	Prompt              string        `json:"prompt"`
	SourceContext       sourceContext `json:"sourceContext"`
	RequirePlanApproval bool          `json:"requirePlanApproval"`
	AutomationMode      string        `json:"automationMode"`
}

type sourceContext struct {
	Source            string            `json:"source"`
	GithubRepoContext githubRepoContext `json:"githubRepoContext"`
}

type githubRepoContext struct {
	StartingBranch string `json:"startingBranch"`
}

// CreateSession starts a new remote session and returns its resource.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	body := createSessionBody{
		Prompt: req.Prompt,
		SourceContext: sourceContext{
			Source:            req.Source,
			GithubRepoContext: githubRepoContext{StartingBranch: req.StartingBranch},
		},
		RequirePlanApproval: req.RequirePlanApproval,
		AutomationMode:      req.AutomationMode,
	}
	var session Session
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/sessions", body, &session); err != nil {
		return nil, err
	}
	if session.Name == "" {
		return nil, &ProtocolError{Message: "create session response is missing a session name"}
	}
	return &session, nil
}

// GetSession fetches the current session state.
func (c *Client) GetSession(ctx context.Context, sessionName string) (*Session, error) {
	var session Session
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/"+sessionName, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ApprovePlan approves a pending plan. Callers treat failures as best-effort;
// the orchestrator keeps polling either way.
func (c *Client) ApprovePlan(ctx context.Context, sessionName string) error {
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/"+sessionName+":approvePlan", struct{}{}, nil)
}

type activitiesPage struct {
	Activities    []Activity `json:"activities"`
	NextPageToken string     `json:"nextPageToken"`
}

// ListActivities fetches every activity for a session, following the page
// token until the server stops returning one. Pages are concatenated in
// server-returned order; ordering across the full log is the caller's job
// (see SortActivities). A page with no activities but a next token is valid
// and pagination continues.
func (c *Client) ListActivities(ctx context.Context, sessionName string, pageSize int) ([]Activity, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	var out []Activity
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(pageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page activitiesPage
		endpoint := c.baseURL + "/" + sessionName + "/activities?" + q.Encode()
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Activities...)
		pageToken = page.NextPageToken
		if pageToken == "" {
			return out, nil
		}
	}
}

// doJSON performs one authenticated request. Non-2xx responses become a
// *TransportError carrying the status and raw body; undecodable success
// bodies become a *ProtocolError. A nil out discards the response body.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jules: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("jules: create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jules: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("jules: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Message: fmt.Sprintf("decode %s response: %v", method, err)}
	}
	return nil
}
