package backup

import (
	"time"

	"go.uber.org/zap"
)

// File names inside the backup directory.
const (
	ArchiveName  = "backup.zip"
	MetadataName = "backup-meta.json"
	SafetyDir    = "safety"

	accessMarker = ".htaccess"
	dateLayout   = "2006-01-02 15:04:05"
)

// Backup describes the primary backup slot.
type Backup struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	SizeLabel string    `json:"size_label"`
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256,omitempty"`
}

// DateLabel formats CreatedAt for display, e.g. "March 4, 2025 at 2:15 PM".
func (b *Backup) DateLabel() string {
	return b.CreatedAt.Local().Format("January 2, 2006 at 3:04 PM")
}

// SafetyCopy is a pre-revert snapshot. Safety copies are never overwritten
// and never used as the primary slot.
type SafetyCopy struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"`
}

// metadata is the on-disk record stored next to the archive. Size and
// SHA256 were added later; records without them are still accepted.
type metadata struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Date      string `json:"date"`
	Size      int64  `json:"size,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
}

// Store manages the single backup slot and the safety copies in one
// directory.
type Store struct {
	dir       string
	component string
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithComponent sets the name used for exported backup files.
func WithComponent(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.component = name
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store rooted at dir. The directory is created on first write.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:       dir,
		component: "theme",
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the backup directory.
func (s *Store) Dir() string {
	return s.dir
}
