package jules

import (
	"os/exec"
	"strings"
)

// branchValue is one candidate in the precedence chain. The "auto" sentinel
// is resolved into an explicit flag here so the chain itself never compares
// strings.
type branchValue struct {
	name string
	auto bool
}

func branchCandidate(raw string) (branchValue, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return branchValue{}, false
	}
	if strings.EqualFold(trimmed, "auto") {
		return branchValue{auto: true}, true
	}
	return branchValue{name: trimmed}, true
}

// BranchResolver determines which source branch a session should start from.
type BranchResolver struct {
	// Detect returns the repository's current branch, or "" when it cannot
	// be determined. Injectable for tests.
	Detect func() string
}

// NewBranchResolver builds a resolver that auto-detects via git in dir.
func NewBranchResolver(dir string) *BranchResolver {
	return &BranchResolver{Detect: func() string { return detectBranch(dir) }}
}

// Resolve walks the precedence chain: CLI override, persona setting,
// environment value, auto-detection, config default. The first present value
// wins; a present value spelled "auto" is replaced by the detection result
// even when that result is empty.
func (r *BranchResolver) Resolve(override, personaValue, envValue, configDefault string) string {
	for _, raw := range []string{override, personaValue, envValue} {
		candidate, ok := branchCandidate(raw)
		if !ok {
			continue
		}
		if candidate.auto {
			return r.Detect()
		}
		return candidate.name
	}
	if detected := r.Detect(); detected != "" {
		return detected
	}
	return strings.TrimSpace(configDefault)
}

// detectBranch reads the checked-out branch name, falling back to the
// remote's default branch when HEAD is detached. Returns "" when neither can
// be determined; the caller decides whether that is fatal.
func detectBranch(dir string) string {
	if name := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD"); name != "" && name != "HEAD" {
		return name
	}
	ref := runGit(dir, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if ref == "" {
		return ""
	}
	// output looks like "origin/main"; strip the remote prefix
	if _, after, ok := strings.Cut(ref, "/"); ok {
		return after
	}
	return ref
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
