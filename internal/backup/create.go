package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/archive"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	safetyNameRegex = regexp.MustCompile(`^safety-backup-(.+?)-(\d{9,})(?:-\d+)?\.zip$`)
)

// Create archives every regular file under root into the backup slot,
// replacing the previous backup. The new archive and metadata are written
// under temporary names and renamed into place only once complete, so a
// failed Create leaves the previous backup intact.
func (s *Store) Create(ctx context.Context, root, version string) (*Backup, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, appErrors.New(appErrors.CodeSourceMissing, "installation directory not found", err)
	}

	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	createdAt := s.now()
	tmpArchive, err := os.CreateTemp(s.dir, ".backup-*.zip.tmp")
	if err != nil {
		return nil, appErrors.New(appErrors.CodeArchiveUnavailable, "cannot create backup archive", err)
	}
	tmpArchivePath := tmpArchive.Name()
	tmpArchive.Close()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpArchivePath)
		}
	}()

	count, err := archive.WriteTree(ctx, root, tmpArchivePath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, appErrors.New(appErrors.CodeCancelled, "backup cancelled", ctx.Err())
		}
		return nil, appErrors.New(appErrors.CodeIO, "failed to archive installation", err)
	}

	size, sum, err := fileDigest(tmpArchivePath)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeIO, "failed to read backup archive", err)
	}

	meta := metadata{
		Version:   version,
		Timestamp: createdAt.Unix(),
		Date:      createdAt.Format(dateLayout),
		Size:      size,
		SHA256:    sum,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup metadata: %w", err)
	}

	tmpMetaPath := filepath.Join(s.dir, "."+MetadataName+".tmp")
	if err := os.WriteFile(tmpMetaPath, metaJSON, 0644); err != nil {
		return nil, appErrors.New(appErrors.CodeIO, "failed to write backup metadata", err)
	}
	defer os.Remove(tmpMetaPath)

	archivePath := s.archivePath()
	if err := os.Rename(tmpArchivePath, archivePath); err != nil {
		return nil, appErrors.New(appErrors.CodeIO, "failed to store backup archive", err)
	}
	committed = true
	if err := os.Rename(tmpMetaPath, s.metadataPath()); err != nil {
		return nil, appErrors.New(appErrors.CodeIO, "failed to store backup metadata", err)
	}

	s.logger.Info("backup created",
		zap.String("version", version),
		zap.Int("files", count),
		zap.Int64("bytes", size))

	return &Backup{
		Version:   version,
		CreatedAt: time.Unix(meta.Timestamp, 0),
		Size:      size,
		SizeLabel: FormatSize(size),
		Path:      archivePath,
		SHA256:    sum,
	}, nil
}

// CreateSafetyCopy archives root into a new, uniquely named file in the
// safety directory. The primary slot is not touched.
func (s *Store) CreateSafetyCopy(ctx context.Context, root, version string) (string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", appErrors.New(appErrors.CodeSourceMissing, "installation directory not found", err)
	}

	safetyDir := filepath.Join(s.dir, SafetyDir)
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(safetyDir, 0755); err != nil {
		return "", appErrors.New(appErrors.CodeIO, "failed to create safety directory", err)
	}

	base := fmt.Sprintf("safety-backup-%s-%d", sanitizeVersion(version), s.now().Unix())
	path, err := reserveName(safetyDir, base)
	if err != nil {
		return "", appErrors.New(appErrors.CodeArchiveUnavailable, "cannot create safety backup", err)
	}

	if _, err := archive.WriteTree(ctx, root, path); err != nil {
		os.Remove(path)
		return "", appErrors.New(appErrors.CodeIO, "safety backup failed", err)
	}

	s.logger.Info("safety backup created", zap.String("path", path))
	return path, nil
}

// ListSafetyCopies returns the safety copies, newest first.
func (s *Store) ListSafetyCopies() ([]*SafetyCopy, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, SafetyDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list safety backups: %w", err)
	}

	var copies []*SafetyCopy
	for _, entry := range entries {
		m := safetyNameRegex.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ts, _ := strconv.ParseInt(m[2], 10, 64)
		copies = append(copies, &SafetyCopy{
			Version:   m[1],
			CreatedAt: time.Unix(ts, 0),
			Size:      info.Size(),
			Path:      filepath.Join(s.dir, SafetyDir, entry.Name()),
		})
	}

	sort.SliceStable(copies, func(i, j int) bool {
		return copies[i].CreatedAt.After(copies[j].CreatedAt)
	})
	return copies, nil
}

// PruneSafetyCopies removes safety copies older than maxAge and returns how
// many were removed.
func (s *Store) PruneSafetyCopies(maxAge time.Duration) (int, error) {
	copies, err := s.ListSafetyCopies()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, c := range copies {
		if !c.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete safety backup %s: %w", c.Path, err)
		}
		removed++
	}
	return removed, nil
}

// ensureDir creates the backup directory with a deny-all marker for web
// servers that would otherwise serve it.
func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return appErrors.New(appErrors.CodeIO, "failed to create backup directory", err)
	}
	marker := filepath.Join(s.dir, accessMarker)
	if _, err := os.Stat(marker); os.IsNotExist(err) {
		if err := os.WriteFile(marker, []byte("deny from all"), 0644); err != nil {
			s.logger.Warn("failed to write access marker", zap.String("path", marker), zap.Error(err))
		}
	}
	return nil
}

func (s *Store) archivePath() string {
	return filepath.Join(s.dir, ArchiveName)
}

func (s *Store) metadataPath() string {
	return filepath.Join(s.dir, MetadataName)
}

// reserveName creates base.zip, or base-N.zip if that exists, and returns
// the path of the created empty file.
func reserveName(dir, base string) (string, error) {
	for i := 0; i < 100; i++ {
		name := base + ".zip"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.zip", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		f.Close()
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s", base)
}

func sanitizeVersion(version string) string {
	v := unsafeNameChars.ReplaceAllString(strings.TrimSpace(version), "_")
	if v == "" {
		return "unknown"
	}
	return v
}

func fileDigest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
