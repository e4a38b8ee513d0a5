package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
)

func TestRunRevertWithoutBackup(t *testing.T) {
	env := setupApp(t)
	revertFlagYes = true

	var err error
	out := captureStdout(t, func() { err = runRevert(revertCmd, nil) })

	if !appErrors.IsCode(err, appErrors.CodeNoBackupAvailable) {
		t.Errorf("runRevert() error = %v, want no_backup_available", err)
	}
	if !strings.Contains(out, "No backup available.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if v := installedVersion(t, env); v != "1.0.0" {
		t.Errorf("installed version = %s, want 1.0.0", v)
	}
}

func TestRunRevertDeclined(t *testing.T) {
	env := setupApp(t)
	updateFlagYes = true
	captureStdout(t, func() {
		if err := runUpdate(updateCmd, nil); err != nil {
			t.Fatalf("runUpdate() error: %v", err)
		}
	})

	stdin = strings.NewReader("no\n")
	out := captureStdout(t, func() {
		if err := runRevert(revertCmd, nil); err != nil {
			t.Errorf("runRevert() error: %v", err)
		}
	})

	if !strings.Contains(out, "Backup Details:") || !strings.Contains(out, "Revert cancelled.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if v := installedVersion(t, env); v != "2.0.0" {
		t.Errorf("installed version = %s, want 2.0.0", v)
	}
}

func TestRunRevertAfterUpdate(t *testing.T) {
	env := setupApp(t)
	updateFlagYes = true
	revertFlagYes = true

	captureStdout(t, func() {
		if err := runUpdate(updateCmd, nil); err != nil {
			t.Fatalf("runUpdate() error: %v", err)
		}
	})

	out := captureStdout(t, func() {
		if err := runRevert(revertCmd, nil); err != nil {
			t.Errorf("runRevert() error: %v", err)
		}
	})

	for _, want := range []string{"Version: 1.0.0", "✓ Theme reverted successfully", "safety copy"} {
		if !strings.Contains(out, want) {
			t.Errorf("revert output missing %q\nGot:\n%s", want, out)
		}
	}
	if v := installedVersion(t, env); v != "1.0.0" {
		t.Errorf("installed version = %s, want 1.0.0", v)
	}
	if _, err := os.Stat(filepath.Join(env.installRoot, "inc", "old.php")); err != nil {
		t.Error("inc/old.php should be restored")
	}
}
