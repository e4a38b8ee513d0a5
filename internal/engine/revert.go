package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/archive"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

// Revert restores the installation from the backup slot. The current tree
// is saved as a safety copy first; a failed safety copy is only a warning.
func (e *Engine) Revert(ctx context.Context) Result {
	return e.run(ctx, store.KindRevert, func(op *store.Operation) Result {
		var warnings []string

		b, ok := e.backups.Latest()
		if !ok {
			return failure(appErrors.New(appErrors.CodeNoBackupAvailable, "No backup file found", nil), "")
		}
		if err := e.backups.Verify(b); err != nil {
			return failure(err, "")
		}
		if _, err := archive.Names(b.Path); err != nil {
			return failure(appErrors.New(appErrors.CodeArchiveUnavailable, "Cannot open backup ZIP", err), "")
		}

		current := e.versions.Current(e.inst.Root)
		op.FromVersion = current

		if e.installed() {
			if path, err := e.backups.CreateSafetyCopy(ctx, e.inst.Root, current); err != nil {
				e.logger.Warn("safety backup failed before revert", zap.Error(err))
				warnings = append(warnings, "Safety backup failed: "+err.Error())
			} else {
				e.logger.Debug("safety backup written", zap.String("path", path))
			}
		}

		err := e.stageAndSwap(ctx, func(staging string) (int, error) {
			return archive.Extract(ctx, b.Path, staging)
		})
		if err != nil {
			return failure(err, "Revert failed")
		}

		res := success("Theme reverted successfully")
		res.PreviousVersion = current
		res.Version = e.versions.Current(e.inst.Root)
		res.Warnings = warnings
		e.afterMutation(ctx, &res)
		return res
	})
}
