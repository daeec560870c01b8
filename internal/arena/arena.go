// Package arena manages the on-disk artifacts of a single render run. Every
// run gets a private directory keyed by a UUID run id, so concurrent runs
// never collide regardless of clock resolution. Stages only ever add files;
// nothing is mutated in place.
package arena

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

const (
	dirPermissions = 0o750

	artifactPrefix = "render"
)

// ErrRootEmpty indicates that no artifact root directory was configured.
var ErrRootEmpty = errors.New("artifact root cannot be empty")

// Arena is the artifact directory of one render run.
type Arena struct {
	RunID     string
	Dir       string
	CreatedAt time.Time
}

// New creates a run arena under the given root, creating the root if needed.
func New(root string) (*Arena, error) {
	if root == "" {
		return nil, ErrRootEmpty
	}

	runID := uuid.NewString()
	dir := filepath.Join(root, runID)

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create run arena %s: %w", dir, mkdirErr)
	}

	return &Arena{
		RunID:     runID,
		Dir:       dir,
		CreatedAt: time.Now(),
	}, nil
}

// BasePath is the path of the raw synthesized take in the given format.
func (a *Arena) BasePath(format string) string {
	return filepath.Join(a.Dir, artifactPrefix+"-"+a.RunID+"."+format)
}

// StagePath derives a stage artifact path from any input path by appending
// the stage suffix before the extension. Successive stages chain naturally:
// render-<id>.wav → render-<id>-hq.wav → render-<id>-hq-tempo.wav.
func StagePath(inputPath, suffix string) string {
	ext := filepath.Ext(inputPath)
	base := inputPath[:len(inputPath)-len(ext)]

	return base + "-" + suffix + ext
}

// Cleanup removes the arena directory and all its contents.
func (a *Arena) Cleanup() error {
	removeErr := os.RemoveAll(a.Dir)
	if removeErr != nil {
		return fmt.Errorf("failed to remove run arena %s: %w", a.Dir, removeErr)
	}

	return nil
}

// Sweep removes every run arena under root older than the retention window.
// It returns the number of arenas removed. Missing roots are not an error:
// there is simply nothing to sweep.
func Sweep(root string, retention time.Duration) (int, error) {
	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to read artifact root %s: %w", root, readErr)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Only touch directories that look like run arenas.
		if _, parseErr := uuid.Parse(entry.Name()); parseErr != nil {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		removeErr := os.RemoveAll(filepath.Join(root, entry.Name()))
		if removeErr != nil {
			return removed, fmt.Errorf(
				"failed to sweep run arena %s: %w",
				entry.Name(),
				removeErr,
			)
		}

		removed++
	}

	return removed, nil
}

// SweepLoop sweeps the root immediately and then on every interval tick
// until the context is cancelled. Sweep failures are logged and the loop
// keeps running.
func SweepLoop(
	ctx context.Context,
	root string,
	retention, interval time.Duration,
	log *logger.Logger,
) {
	sweep := func() {
		removed, sweepErr := Sweep(root, retention)
		if sweepErr != nil {
			log.Warn("Arena sweep failed: %v", sweepErr)

			return
		}

		if removed > 0 {
			log.Info("Arena sweep removed %d expired run directories", removed)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
