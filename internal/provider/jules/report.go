package jules

import (
	"fmt"
	"strings"
)

const (
	// maxAgentMessages caps the Agent messages section to the most recent
	// entries, oldest of the kept ones first.
	maxAgentMessages = 10

	// maxPatchChars truncates the suggested patch section.
	maxPatchChars = 20000

	emptyReportLine = "_No messages or artifacts were returned by the API._"
)

// Render folds the final session and its ordered activity log into a markdown
// report. It is a pure function: identical inputs yield byte-identical text,
// and malformed or missing optional fields degrade to "absent" rather than
// erroring.
func Render(session *Session, activities []Activity) string {
	if session == nil {
		session = &Session{}
	}
	var lines []string
	lines = append(lines, "# Jules session result", "")
	lines = append(lines, fmt.Sprintf("- **Session:** `%s`", session.Name))
	lines = append(lines, fmt.Sprintf("- **State:** `%s`", session.State))
	if session.URL != "" {
		lines = append(lines, fmt.Sprintf("- **URL:** %s", session.URL))
	}
	lines = append(lines, "")

	var prURLs []string
	for _, output := range session.Outputs {
		if output.PullRequest != nil && output.PullRequest.URL != "" {
			prURLs = append(prURLs, output.PullRequest.URL)
		}
	}
	if len(prURLs) > 0 {
		lines = append(lines, "## Outputs")
		for _, u := range prURLs {
			lines = append(lines, fmt.Sprintf("- Pull Request: %s", u))
		}
		lines = append(lines, "")
	}

	// Single ordered pass over the activity log.
	var agentMessages []string
	var progress []ProgressUpdated
	var failures []string
	var patches []string
	for _, activity := range activities {
		if activity.AgentMessaged != nil && activity.AgentMessaged.AgentMessage != "" {
			agentMessages = append(agentMessages, activity.AgentMessaged.AgentMessage)
		}
		if activity.ProgressUpdated != nil {
			pu := *activity.ProgressUpdated
			if pu.Title != "" || pu.Description != "" {
				progress = append(progress, pu)
			}
		}
		if activity.SessionFailed != nil && activity.SessionFailed.Reason != "" {
			failures = append(failures, activity.SessionFailed.Reason)
		}
		for _, artifact := range activity.Artifacts {
			if artifact.ChangeSet != nil && artifact.ChangeSet.GitPatch != nil &&
				artifact.ChangeSet.GitPatch.UnidiffPatch != "" {
				patches = append(patches, artifact.ChangeSet.GitPatch.UnidiffPatch)
			}
		}
	}

	if len(progress) > 0 {
		lines = append(lines, "## Progress")
		for _, pu := range progress {
			if pu.Title != "" {
				lines = append(lines, fmt.Sprintf("- **%s**", pu.Title))
			}
			if pu.Description != "" {
				lines = append(lines, fmt.Sprintf("  - %s", pu.Description))
			}
		}
		lines = append(lines, "")
	}

	if len(agentMessages) > 0 {
		lines = append(lines, "## Agent messages")
		kept := agentMessages
		if len(kept) > maxAgentMessages {
			kept = kept[len(kept)-maxAgentMessages:]
		}
		for _, message := range kept {
			lines = append(lines, "", strings.TrimSpace(message))
		}
		lines = append(lines, "")
	}

	if len(patches) > 0 {
		lines = append(lines, "## Suggested patch (unidiff)")
		patch := patches[0]
		if len(patch) > maxPatchChars {
			patch = patch[:maxPatchChars] + "\n... (truncated)\n"
		}
		lines = append(lines, "```diff")
		lines = append(lines, strings.TrimRight(patch, "\n"))
		lines = append(lines, "```", "")
	}

	if len(failures) > 0 {
		lines = append(lines, "## Failure reason")
		for _, reason := range failures {
			lines = append(lines, fmt.Sprintf("- %s", reason))
		}
		lines = append(lines, "")
	}

	if len(agentMessages) == 0 && len(patches) == 0 && len(prURLs) == 0 && len(progress) == 0 {
		lines = append(lines, emptyReportLine)
	}

	return strings.TrimRight(strings.Join(lines, "\n"), " \t\n") + "\n"
}
