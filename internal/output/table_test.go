package output

import (
	"strings"
	"testing"
	"time"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/backup"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/changelog"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/engine"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

func assertContains(t *testing.T, fn, got string, want []string) {
	t.Helper()
	for _, expected := range want {
		if !strings.Contains(got, expected) {
			t.Errorf("%s() missing expected string %q\nGot:\n%s", fn, expected, got)
		}
	}
}

func TestRenderResult(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		name     string
		result   engine.Result
		contains []string
		excludes []string
	}{
		{
			name: "successful update",
			result: engine.Result{
				Success:         true,
				Message:         "Theme updated successfully",
				Version:         "2.0.0",
				PreviousVersion: "1.0.0",
			},
			contains: []string{"✓ Theme updated successfully", "(1.0.0 → 2.0.0)"},
			excludes: []string{"⚠"},
		},
		{
			name: "same version omits arrow",
			result: engine.Result{
				Success:         true,
				Message:         "Backup created",
				Version:         "1.0.0",
				PreviousVersion: "1.0.0",
			},
			contains: []string{"✓ Backup created"},
			excludes: []string{"→"},
		},
		{
			name: "failure with code",
			result: engine.Result{
				Code:    appErrors.CodeNoBackupAvailable,
				Message: "No backup found",
			},
			contains: []string{"✗ No backup found", "[" + string(appErrors.CodeNoBackupAvailable) + "]"},
		},
		{
			name: "warnings listed",
			result: engine.Result{
				Success:  true,
				Message:  "Theme updated successfully",
				Warnings: []string{"backup skipped: disk full"},
			},
			contains: []string{"⚠ backup skipped: disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderResult(tt.result)
			assertContains(t, "RenderResult", got, tt.contains)
			for _, unexpected := range tt.excludes {
				if strings.Contains(got, unexpected) {
					t.Errorf("RenderResult() unexpectedly contains %q\nGot:\n%s", unexpected, got)
				}
			}
		})
	}
}

func TestRenderStatus(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	checked := now.Add(-3 * time.Hour)

	tests := []struct {
		name     string
		status   *updater.Status
		contains []string
	}{
		{
			name: "never checked",
			status: &updater.Status{
				InstallRoot:  "/var/www/themes/floorspace-v2",
				Repo:         "websitetown/floorspace-site",
				Branch:       "dev_v1",
				Current:      "1.0.0",
				CheckOverdue: true,
			},
			contains: []string{
				"/var/www/themes/floorspace-v2",
				"websitetown/floorspace-site@dev_v1",
				"unknown",
				"never",
				"Backup:        none",
				"Tip: no update check in the last 24 hours",
			},
		},
		{
			name: "update available",
			status: &updater.Status{
				Current:         "1.0.0",
				Latest:          "2.0.0",
				UpdateAvailable: true,
				LastCheck:       &checked,
				Components:      map[string]string{"header": "2.0", "footer": "1.4"},
				Backup: &backup.Backup{
					Version:   "0.9.0",
					CreatedAt: now.Add(-48 * time.Hour),
					SizeLabel: "1.2 MB",
				},
				SafetyCopies: 2,
				Busy:         true,
			},
			contains: []string{
				"2.0.0 (update available)",
				"3 hours ago",
				"0.9.0",
				"(1.2 MB)",
				"Safety copies: 2",
				"an operation is running",
				"Components in latest release",
				"footer",
				"1.4",
			},
		},
		{
			name: "up to date",
			status: &updater.Status{
				Current: "2.0.0",
				Latest:  "2.0.0",
			},
			contains: []string{"2.0.0 (up to date)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertContains(t, "RenderStatus", RenderStatus(tt.status, now), tt.contains)
		})
	}
}

func TestRenderStatusNoTipWhenRecent(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	got := RenderStatus(&updater.Status{Current: "1.0.0"}, time.Now())
	if strings.Contains(got, "Tip:") {
		t.Errorf("RenderStatus() should not show the reminder, got:\n%s", got)
	}
}

func TestRenderBackup(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if got := RenderBackup(nil, now); !strings.Contains(got, "No backup found") {
		t.Errorf("RenderBackup(nil) = %q", got)
	}

	b := &backup.Backup{
		Version:   "1.0.0",
		CreatedAt: now.Add(-24 * time.Hour),
		SizeLabel: "512 KB",
		Path:      "/data/backups/backup.zip",
		SHA256:    "abc123",
	}
	assertContains(t, "RenderBackup", RenderBackup(b, now), []string{
		"1.0.0", "1 day ago", "512 KB", "/data/backups/backup.zip", "abc123",
	})
}

func TestRenderSafetyCopyTable(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if got := RenderSafetyCopyTable(nil, now); !strings.Contains(got, "No safety copies found") {
		t.Errorf("RenderSafetyCopyTable(nil) = %q", got)
	}

	copies := []*backup.SafetyCopy{
		{Version: "1.0.0", CreatedAt: now.Add(-72 * time.Hour), Size: 2048, Path: "/b/safety/safety-backup-1.0.0-1741348800.zip"},
		{Version: "2.0.0", CreatedAt: now.Add(-2 * time.Hour), Size: 3 * 1024 * 1024, Path: "/b/safety/safety-backup-2.0.0-1741600800.zip"},
	}
	got := RenderSafetyCopyTable(copies, now)
	assertContains(t, "RenderSafetyCopyTable", got, []string{"2.0 KiB", "3.0 MiB", "2 hours ago", "3 days ago"})

	if strings.Index(got, "2.0.0") > strings.Index(got, "1.0.0") {
		t.Errorf("RenderSafetyCopyTable() should list newest first, got:\n%s", got)
	}
	// input order is preserved
	if copies[0].Version != "1.0.0" {
		t.Error("RenderSafetyCopyTable() reordered its input")
	}
}

func TestRenderChangelogTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		name     string
		entries  []changelog.Entry
		contains []string
	}{
		{
			name:     "placeholder",
			entries:  changelog.Fallback(),
			contains: []string{"No changelog entries found"},
		},
		{
			name: "entries with security badge",
			entries: []changelog.Entry{
				{Version: "2.1.0", Date: "January 15, 2025", Highlight: true, Badge: changelog.SecurityBadge},
				{Version: "2.0.0", Date: "December 1, 2024"},
			},
			contains: []string{"2.1.0", "January 15, 2025", "Security", "2.0.0", "December 1, 2024"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertContains(t, "RenderChangelogTable", RenderChangelogTable(tt.entries), tt.contains)
		})
	}
}

func TestRenderComponentTable(t *testing.T) {
	if got := RenderComponentTable(nil); !strings.Contains(got, "No component versions") {
		t.Errorf("RenderComponentTable(nil) = %q", got)
	}

	got := RenderComponentTable(map[string]string{"header": "2.0", "footer": "1.4"})
	if strings.Index(got, "footer") > strings.Index(got, "header") {
		t.Errorf("RenderComponentTable() should sort by name, got:\n%s", got)
	}
}

func TestRenderHistoryTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if got := RenderHistoryTable(nil, now); !strings.Contains(got, "No operations recorded") {
		t.Errorf("RenderHistoryTable(nil) = %q", got)
	}

	ops := []*store.Operation{
		{
			Kind:        store.KindUpdate,
			FromVersion: "1.0.0",
			ToVersion:   "2.0.0",
			Success:     true,
			Message:     "Theme updated successfully",
			StartedAt:   now.Add(-2 * time.Hour),
			FinishedAt:  now.Add(-2*time.Hour + 1500*time.Millisecond),
		},
		{
			Kind:       store.KindRevert,
			Code:       string(appErrors.CodeNoBackupAvailable),
			Message:    "No backup found",
			StartedAt:  now.Add(-1 * time.Hour),
			FinishedAt: now.Add(-1*time.Hour + 20*time.Millisecond),
		},
	}
	assertContains(t, "RenderHistoryTable", RenderHistoryTable(ops, now), []string{
		"update", "revert", "1.0.0 → 2.0.0", "ok", "failed", "1.5s", "20ms", "2 hours ago", "No backup found",
	})
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "never"},
		{"seconds", now.Add(-10 * time.Second), "just now"},
		{"hours", now.Add(-5 * time.Hour), "5 hours ago"},
		{"days", now.Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRelativeTime(tt.t, now); got != tt.want {
				t.Errorf("formatRelativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatVersions(t *testing.T) {
	tests := []struct {
		from, to, want string
	}{
		{"", "", "—"},
		{"1.0.0", "", "1.0.0"},
		{"1.0.0", "1.0.0", "1.0.0"},
		{"", "2.0.0", "2.0.0"},
		{"1.0.0", "2.0.0", "1.0.0 → 2.0.0"},
	}
	for _, tt := range tests {
		if got := formatVersions(tt.from, tt.to); got != tt.want {
			t.Errorf("formatVersions(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
