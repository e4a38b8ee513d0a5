package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/archive"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/remote"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

// Update replaces the installation with the component folder from the
// repository archive. The current installation is backed up first; what
// happens when that backup fails is decided by the BackupPolicy. The live
// tree is only touched once the new tree has been fully extracted.
func (e *Engine) Update(ctx context.Context) Result {
	return e.run(ctx, store.KindUpdate, func(op *store.Operation) Result {
		var warnings []string

		current := e.versions.Current(e.inst.Root)
		op.FromVersion = current

		if w, err := e.backupBeforeUpdate(ctx, current); err != nil {
			return failure(err, "Backup failed, update aborted")
		} else if w != "" {
			warnings = append(warnings, w)
		}

		tmp, err := os.CreateTemp("", "themeupdater-*.zip")
		if err != nil {
			return failure(appErrors.New(appErrors.CodeIO, "cannot create temporary file", err), "")
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := e.download(ctx, tmpPath); err != nil {
			return failure(err, "")
		}

		names, err := archive.Names(tmpPath)
		if err != nil {
			return failure(appErrors.New(appErrors.CodeArchiveUnavailable, "Cannot open ZIP file", err), "")
		}
		prefix, ok := archive.FindPrefix(names, e.source.ComponentPath)
		if !ok {
			return failure(appErrors.New(appErrors.CodeSubtreeNotFound,
				fmt.Sprintf("Component folder %s not found in ZIP", e.source.ComponentPath), nil), "")
		}

		err = e.stageAndSwap(ctx, func(staging string) (int, error) {
			n, err := archive.ExtractPrefix(ctx, tmpPath, prefix, staging)
			if err == nil && n == 0 {
				return 0, errNoFiles
			}
			return n, err
		})
		if err != nil {
			return failure(err, "Update failed")
		}

		res := success("Theme updated successfully")
		res.PreviousVersion = current
		res.Version = e.versions.Current(e.inst.Root)
		res.Warnings = warnings
		e.afterMutation(ctx, &res)
		return res
	})
}

// backupBeforeUpdate returns a warning when the backup was skipped or
// failed under PolicyContinue.
func (e *Engine) backupBeforeUpdate(ctx context.Context, current string) (string, error) {
	if !e.installed() {
		e.logger.Info("no existing installation, skipping backup", zap.String("root", e.inst.Root))
		return "No existing installation to back up", nil
	}

	_, err := e.backups.Create(ctx, e.inst.Root, current)
	if err == nil {
		return "", nil
	}
	if e.policy == PolicyAbort || ctx.Err() != nil {
		return "", err
	}
	e.logger.Warn("backup failed, continuing with update", zap.Error(err))
	return "Backup failed: " + err.Error(), nil
}

func (e *Engine) download(ctx context.Context, dst string) error {
	n, err := e.fetcher.Download(ctx, e.source.ArchiveURL, dst)
	if err != nil {
		if ctx.Err() != nil {
			return appErrors.New(appErrors.CodeCancelled, "Download cancelled", ctx.Err())
		}
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) {
			return appErrors.New(appErrors.CodeDownloadFailed,
				fmt.Sprintf("Download failed with code: %d", statusErr.StatusCode), err)
		}
		return appErrors.New(appErrors.CodeDownloadFailed, "Download failed", err)
	}
	if n == 0 {
		return appErrors.New(appErrors.CodeDownloadFailed, "Downloaded file is empty", nil)
	}
	e.logger.Info("archive downloaded", zap.Int64("bytes", n))
	return nil
}
