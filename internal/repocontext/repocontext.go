// Package repocontext builds the local context text appended to each persona
// prompt. Payloads are deterministic for a given working tree so identical
// runs compose identical prompts.
package repocontext

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Modes supported by Build. Unknown modes fall back to ModeRepo.
const (
	ModeRepo = "repo"
	ModeDiff = "diff"
	ModeDir  = "dir"
)

// maxDiffChars bounds the diff payload so a huge working tree cannot blow up
// the composed prompt.
const maxDiffChars = 40000

// maxDirEntries bounds the recursive listing.
const maxDirEntries = 500

var skippedEntries = map[string]bool{
	".git":          true,
	".agent-runner": true,
	".venv":         true,
	"node_modules":  true,
}

// Payload is the rendered context plus the mode that actually produced it.
type Payload struct {
	Mode string
	Text string
}

// Build renders the context payload for the given mode rooted at dir.
func Build(dir, mode string) (Payload, error) {
	switch mode {
	case ModeDiff:
		return buildDiff(dir)
	case ModeDir:
		return buildDir(dir)
	case ModeRepo:
		return buildRepo(dir)
	default:
		return buildRepo(dir)
	}
}

func buildRepo(dir string) (Payload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Payload{}, fmt.Errorf("repocontext: read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if skippedEntries[entry.Name()] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Repository root entries:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return Payload{Mode: ModeRepo, Text: strings.TrimRight(b.String(), "\n")}, nil
}

// buildDiff captures staged and unstaged changes. A repository with no
// changes (or no git at all) degrades to the repo listing rather than
// erroring; the persona still gets something to work with.
func buildDiff(dir string) (Payload, error) {
	unstaged := runGit(dir, "diff")
	staged := runGit(dir, "diff", "--cached")
	combined := strings.TrimSpace(strings.TrimSpace(staged) + "\n\n" + strings.TrimSpace(unstaged))
	if combined == "" {
		return buildRepo(dir)
	}
	if len(combined) > maxDiffChars {
		combined = combined[:maxDiffChars] + "\n... (diff truncated)"
	}
	text := "Working tree diff (staged then unstaged):\n```diff\n" + combined + "\n```"
	return Payload{Mode: ModeDiff, Text: text}, nil
}

func buildDir(dir string) (Payload, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() && skippedEntries[d.Name()] {
			return filepath.SkipDir
		}
		if !d.IsDir() {
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return Payload{}, fmt.Errorf("repocontext: walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	truncated := false
	if len(paths) > maxDirEntries {
		paths = paths[:maxDirEntries]
		truncated = true
	}
	var b strings.Builder
	b.WriteString("Repository files:\n")
	for _, p := range paths {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if truncated {
		b.WriteString("... (listing truncated)\n")
	}
	return Payload{Mode: ModeDir, Text: strings.TrimRight(b.String(), "\n")}, nil
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
