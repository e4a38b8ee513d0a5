// Package archive reads and writes the zip archives used for backups and
// downloaded release snapshots.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is returned when an entry would be written outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// WriteTree archives every regular file under root into a new zip at dst.
// Entry names are root-relative with forward slashes. Directories are
// implied by file paths. A symlinked root is followed; symlinks and other
// special files below it are skipped. It returns the number of files
// written.
func WriteTree(ctx context.Context, root, dst string) (int, error) {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create archive %s: %w", dst, err)
	}

	zw := zip.NewWriter(out)
	count := 0

	walkErr := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if err := copyFile(w, file); err != nil {
			return err
		}
		count++
		return nil
	})

	closeErr := zw.Close()
	if err := out.Close(); closeErr == nil {
		closeErr = err
	}

	if walkErr != nil {
		return count, fmt.Errorf("archive %s: %w", root, walkErr)
	}
	if closeErr != nil {
		return count, fmt.Errorf("finalize archive %s: %w", dst, closeErr)
	}
	return count, nil
}

func copyFile(w io.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// Names lists the entry names of the archive at src in stored order.
func Names(src string) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", src, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// FindPrefix locates the folder for component inside a repository snapshot.
// The first entry whose name contains "/<component>/" decides; the prefix is
// everything up to and including that segment. Repository snapshots nest
// every file under a generated top-level folder, so the leading slash is
// always present for real matches.
func FindPrefix(names []string, component string) (string, bool) {
	marker := "/" + strings.Trim(component, "/") + "/"
	for _, name := range names {
		if idx := strings.Index(name, marker); idx >= 0 {
			return name[:idx+len(marker)], true
		}
	}
	return "", false
}

// Extract writes every file in the archive at src beneath dest.
func Extract(ctx context.Context, src, dest string) (int, error) {
	return ExtractPrefix(ctx, src, "", dest)
}

// ExtractPrefix writes the files whose names begin with prefix beneath
// dest, with prefix stripped. Entries that would resolve outside dest fail
// the whole extraction with ErrUnsafePath. It returns the number of files
// written.
func ExtractPrefix(ctx context.Context, src, prefix, dest string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("open archive %s: %w", src, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	count := 0
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}

		rel := strings.TrimPrefix(f.Name, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") || f.FileInfo().IsDir() {
			continue
		}

		target, err := safeJoin(dest, rel)
		if err != nil {
			return count, fmt.Errorf("%w: %s", err, f.Name)
		}

		if err := writeEntry(f, target); err != nil {
			return count, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		count++
	}

	return count, nil
}

func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return "", ErrUnsafePath
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrUnsafePath
	}
	return filepath.Join(dest, filepath.FromSlash(cleaned)), nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
