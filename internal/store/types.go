package store

import "time"

// Operation kinds recorded in the history table.
const (
	KindUpdate = "update"
	KindRevert = "revert"
	KindBackup = "backup"
	KindDelete = "delete"
	KindDrift  = "drift"
)

// Operation is one entry in the update/revert audit log.
type Operation struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	InstallRoot string    `json:"install_root"`
	FromVersion string    `json:"from_version,omitempty"`
	ToVersion   string    `json:"to_version,omitempty"`
	Success     bool      `json:"success"`
	Code        string    `json:"code,omitempty"` // structured error code, empty on success
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Duration returns how long the operation took.
func (o *Operation) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// CacheEntry is a persisted cache value with an absolute expiry.
type CacheEntry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}
