package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
)

// Latest returns the primary backup. It reports false unless both the
// archive and its metadata exist, the metadata parses, and the recorded
// archive size matches the file on disk.
func (s *Store) Latest() (*Backup, bool) {
	info, err := os.Stat(s.archivePath())
	if err != nil || info.IsDir() {
		return nil, false
	}

	meta, err := s.readMetadata()
	if err != nil {
		s.logger.Debug("backup metadata unusable", zap.Error(err))
		return nil, false
	}
	if meta.Size > 0 && meta.Size != info.Size() {
		s.logger.Warn("backup archive does not match its metadata",
			zap.Int64("recorded", meta.Size),
			zap.Int64("actual", info.Size()))
		return nil, false
	}

	return &Backup{
		Version:   meta.Version,
		CreatedAt: time.Unix(meta.Timestamp, 0),
		Size:      info.Size(),
		SizeLabel: FormatSize(info.Size()),
		Path:      s.archivePath(),
		SHA256:    meta.SHA256,
	}, true
}

func (s *Store) readMetadata() (*metadata, error) {
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		return nil, err
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, appErrors.New(appErrors.CodeValidation, "malformed backup metadata", err)
	}
	if meta.Timestamp == 0 && meta.Version == "" {
		return nil, appErrors.New(appErrors.CodeValidation, "empty backup metadata", nil)
	}
	return &meta, nil
}

// Verify checks the archive against the digest recorded at creation time.
// Backups written before digests were recorded pass unchecked.
func (s *Store) Verify(b *Backup) error {
	if b.SHA256 == "" {
		return nil
	}
	_, sum, err := fileDigest(b.Path)
	if err != nil {
		return appErrors.New(appErrors.CodeArchiveUnavailable, "cannot read backup archive", err)
	}
	if sum != b.SHA256 {
		return appErrors.New(appErrors.CodeValidation, "backup archive checksum mismatch", nil)
	}
	return nil
}

// Delete removes the primary backup archive and its metadata.
func (s *Store) Delete() error {
	if _, err := os.Stat(s.archivePath()); os.IsNotExist(err) {
		return appErrors.New(appErrors.CodeNotFound, "backup file not found", nil)
	}
	if err := os.Remove(s.archivePath()); err != nil {
		return appErrors.New(appErrors.CodeIO, "failed to delete backup file", err)
	}
	if err := os.Remove(s.metadataPath()); err != nil && !os.IsNotExist(err) {
		return appErrors.New(appErrors.CodeIO, "failed to delete backup metadata", err)
	}
	s.logger.Info("backup deleted")
	return nil
}

// Open returns a reader over the primary backup archive.
func (s *Store) Open() (io.ReadCloser, *Backup, error) {
	b, ok := s.Latest()
	if !ok {
		return nil, nil, appErrors.New(appErrors.CodeNoBackupAvailable, "backup file not found", nil)
	}
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, nil, appErrors.New(appErrors.CodeArchiveUnavailable, "cannot open backup archive", err)
	}
	return f, b, nil
}

// ExportName is the download file name for b.
func (s *Store) ExportName(b *Backup) string {
	return fmt.Sprintf("%s-backup-%s.zip", s.component, sanitizeVersion(b.Version))
}

// Export copies the primary backup to dst. When dst is an existing
// directory the file is named by ExportName. It returns the written path.
func (s *Store) Export(dst string) (string, error) {
	src, b, err := s.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, s.ExportName(b))
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", appErrors.New(appErrors.CodeIO, "cannot create export file", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", appErrors.New(appErrors.CodeIO, "failed to export backup", err)
	}
	if err := out.Close(); err != nil {
		return "", appErrors.New(appErrors.CodeIO, "failed to export backup", err)
	}
	return dst, nil
}

// FormatSize formats a byte count with two decimals in binary units:
// "500 bytes", "2.00 KB", "5.00 MB", "1.25 GB".
func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	}
	return fmt.Sprintf("%d bytes", bytes)
}
