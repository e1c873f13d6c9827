package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/fetchpilot/internal/logctx"
	"github.com/italolelis/fetchpilot/internal/storage"
)

// DeleteExpiredFiles deletes retrieved artifacts older than keepDuration
// based on the run history. Runs without a file path are skipped.
func DeleteExpiredFiles(ctx context.Context, runs []storage.RunRecord, dir string, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	for _, run := range runs {
		if run.FilePath == "" {
			continue
		}

		// Run records store the path relative to the working directory;
		// only files inside the download dir are ever deleted.
		rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(run.FilePath))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			logger.WarnContext(ctx, "skipping file outside download dir", "file", run.FilePath)

			continue
		}

		info, err := os.Stat(run.FilePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.ErrorContext(ctx, "failed to stat file", "file", run.FilePath, "err", err)

			return err
		}

		finishedAt := run.FinishedAt
		if finishedAt.IsZero() {
			// fallback: use file mod time
			finishedAt = info.ModTime()
		}

		if now.Sub(finishedAt) > keepDuration {
			if err := os.Remove(run.FilePath); err != nil && !os.IsNotExist(err) {
				logger.ErrorContext(ctx, "failed to delete expired file", "file", run.FilePath, "err", err)

				return err
			}

			logger.InfoContext(ctx, "deleted expired file", "file", run.FilePath)
		}
	}

	return nil
}
