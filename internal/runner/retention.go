package runner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// PruneRuns removes run directories older than the configured retention
// window and returns how many were deleted. A missing runs directory is not
// an error; there is simply nothing to prune.
func (r *Runner) PruneRuns() (int, error) {
	cutoff := r.now().AddDate(0, 0, -r.cfg.App.Retention.Days)
	entries, err := os.ReadDir(r.cfg.RunsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	pruned := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.cfg.RunsDir(), entry.Name())); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// RetentionCutoff exposes the prune boundary for reporting.
func (r *Runner) RetentionCutoff() time.Time {
	return r.now().AddDate(0, 0, -r.cfg.App.Retention.Days)
}
