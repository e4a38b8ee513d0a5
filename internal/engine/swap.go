package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/archive"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
)

// errNoFiles is returned by a fill function that produced an empty tree
// where files are required.
var errNoFiles = errors.New("archive contains no files")

// stageAndSwap builds the replacement tree in a staging directory next to
// the installation, then swaps it in with two renames. If the second rename
// fails the previous tree is moved back, so the installation is either
// wholly old or wholly new. When the root is a symlink the directory it
// points to is replaced and the link is kept.
func (e *Engine) stageAndSwap(ctx context.Context, fill func(staging string) (int, error)) error {
	root := filepath.Clean(e.inst.Root)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	parent, base := filepath.Dir(root), filepath.Base(root)

	if err := os.MkdirAll(parent, 0755); err != nil {
		return appErrors.New(appErrors.CodeIO, "cannot create installation parent directory", err)
	}

	staging, err := os.MkdirTemp(parent, "."+base+".staging-")
	if err != nil {
		return appErrors.New(appErrors.CodeIO, "cannot create staging directory", err)
	}
	defer os.RemoveAll(staging)
	if err := os.Chmod(staging, 0755); err != nil {
		return appErrors.New(appErrors.CodeIO, "cannot prepare staging directory", err)
	}

	n, err := fill(staging)
	switch {
	case err != nil && ctx.Err() != nil:
		return appErrors.New(appErrors.CodeCancelled, "operation cancelled", ctx.Err())
	case errors.Is(err, archive.ErrUnsafePath):
		return appErrors.New(appErrors.CodeArchive, "archive contains unsafe paths", err)
	case errors.Is(err, errNoFiles):
		return appErrors.New(appErrors.CodeArchive, errNoFiles.Error(), nil)
	case err != nil:
		return appErrors.New(appErrors.CodeArchive, "cannot extract archive", err)
	}

	if err := ctx.Err(); err != nil {
		return appErrors.New(appErrors.CodeCancelled, "operation cancelled", err)
	}

	old := ""
	if _, err := os.Lstat(root); err == nil {
		old = filepath.Join(parent, fmt.Sprintf(".%s.old-%d", base, e.now().UnixNano()))
		if err := os.Rename(root, old); err != nil {
			return appErrors.New(appErrors.CodeIO, "cannot move current installation aside", err)
		}
	}

	if err := os.Rename(staging, root); err != nil {
		if old != "" {
			if rbErr := os.Rename(old, root); rbErr != nil {
				e.logger.Error("failed to restore previous installation",
					zap.String("root", root), zap.String("saved", old), zap.Error(rbErr))
			}
		}
		return appErrors.New(appErrors.CodeIO, "cannot move new installation into place", err)
	}

	e.logger.Info("installation swapped", zap.String("root", root), zap.Int("files", n))

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			e.logger.Warn("failed to remove previous installation", zap.String("path", old), zap.Error(err))
		}
	}
	return nil
}
