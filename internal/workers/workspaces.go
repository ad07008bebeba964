package workers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	renamesvc "renamebot/internal/services/rename"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// WorkspaceJanitor removes per-job workspaces left behind by a crash or a
// kill during a transfer. A workspace is stale once nothing inside it has
// been touched for maxAge.
type WorkspaceJanitor struct {
	*BaseWorker
	root   string
	maxAge time.Duration
	now    func() time.Time
}

// NewWorkspaceJanitor creates the janitor; an empty root means os.TempDir()
func NewWorkspaceJanitor(root string, maxAge, interval time.Duration, log *logger.Logger) *WorkspaceJanitor {
	if root == "" {
		root = os.TempDir()
	}
	return &WorkspaceJanitor{
		BaseWorker: NewBaseWorker("workspace_janitor", interval, interval > 0 && maxAge > 0, log),
		root:       root,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Run scans root once
func (w *WorkspaceJanitor) Run(ctx context.Context) error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read workspace root %s", w.root)
	}

	cutoff := w.now().Add(-w.maxAge)
	var removed int
	var errs errors.MultiError

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), renamesvc.WorkspacePrefix) {
			continue
		}

		dir := filepath.Join(w.root, entry.Name())
		touched, err := lastTouched(dir)
		if err != nil {
			errs.Add(err)
			continue
		}
		if touched.After(cutoff) {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			errs.Add(errors.Wrapf(err, "remove %s", dir))
			continue
		}
		removed++
		w.Log().Infow("Removed stale workspace", "dir", dir, "last_touched", touched)
	}

	if removed > 0 {
		w.Log().Infow("Workspace cleanup finished", "removed", removed)
	}
	return errs.ToError()
}

// lastTouched is the newest mtime of dir and its direct children
func lastTouched(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "stat %s", dir)
	}
	newest := info.ModTime()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "read %s", dir)
	}
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			// removed concurrently
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	return newest, nil
}
