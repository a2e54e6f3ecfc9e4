package jules

import "sort"

// Session states reported by the API. COMPLETED and FAILED are terminal; a
// local timeout is not a session state.
const (
	StateCompleted             = "COMPLETED"
	StateFailed                = "FAILED"
	StateAwaitingPlanApproval  = "AWAITING_PLAN_APPROVAL"
	automationModeUnspecified  = "AUTOMATION_MODE_UNSPECIFIED"
	automationModeAutoCreatePR = "AUTO_CREATE_PR"
)

// Session mirrors the session resource returned by the API. It is a read-only
// projection of server state; polling re-fetches it, never mutates it locally.
type Session struct {
	Name    string          `json:"name"`
	State   string          `json:"state"`
	URL     string          `json:"url,omitempty"`
	Outputs []SessionOutput `json:"outputs,omitempty"`
}

// Terminal reports whether polling should stop.
func (s *Session) Terminal() bool {
	if s == nil {
		return false
	}
	return s.State == StateCompleted || s.State == StateFailed
}

// SessionOutput is one entry of a session's outputs list.
type SessionOutput struct {
	PullRequest *PullRequest `json:"pullRequest,omitempty"`
}

// PullRequest references a pull request created by the session.
type PullRequest struct {
	URL string `json:"url,omitempty"`
}

// Activity is one immutable event in a session's activity log. It is a tagged
// union: exactly one of the event fields is expected to be set, but nothing is
// enforced; missing fields simply read as absent.
type Activity struct {
	ID              string             `json:"id"`
	CreateTime      string             `json:"createTime"`
	AgentMessaged   *AgentMessaged     `json:"agentMessaged,omitempty"`
	ProgressUpdated *ProgressUpdated   `json:"progressUpdated,omitempty"`
	SessionFailed   *SessionFailed     `json:"sessionFailed,omitempty"`
	Artifacts       []ActivityArtifact `json:"artifacts,omitempty"`
}

// AgentMessaged carries a free-form message from the agent.
type AgentMessaged struct {
	AgentMessage string `json:"agentMessage,omitempty"`
}

// ProgressUpdated reports a step the agent is working on.
type ProgressUpdated struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// SessionFailed carries the reason a session failed.
type SessionFailed struct {
	Reason string `json:"reason,omitempty"`
}

// ActivityArtifact wraps an artifact attached to an activity.
type ActivityArtifact struct {
	ChangeSet *ChangeSet `json:"changeSet,omitempty"`
}

// ChangeSet groups patch artifacts.
type ChangeSet struct {
	GitPatch *GitPatch `json:"gitPatch,omitempty"`
}

// GitPatch carries a unified diff.
type GitPatch struct {
	UnidiffPatch string `json:"unidiffPatch,omitempty"`
}

// SortActivities orders activities by (createTime, id) ascending. Both fields
// are strings; lexical comparison is sufficient for ISO-8601 timestamps. The
// sort is stable so equal keys keep their server-returned order.
func SortActivities(activities []Activity) {
	sort.SliceStable(activities, func(i, j int) bool {
		if activities[i].CreateTime != activities[j].CreateTime {
			return activities[i].CreateTime < activities[j].CreateTime
		}
		return activities[i].ID < activities[j].ID
	})
}
