package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater/updatertest"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestUpdater(t *testing.T) (*Updater, *updatertest.Remote) {
	t.Helper()
	remote := updatertest.NewRemote(t)
	cfg := updatertest.Config(t, remote)
	updatertest.Install(t, cfg.InstallRoot)

	u, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { u.Close() })
	return u, remote
}

func TestCheckRecordsLastCheck(t *testing.T) {
	u, _ := newTestUpdater(t)

	if !u.CheckOverdue() {
		t.Error("CheckOverdue() = false before any check")
	}

	st, err := u.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if st.Current != "1.0.0" || st.Latest != "2.0.0" || !st.UpdateAvailable {
		t.Errorf("Check() = %+v", st)
	}
	if st.Message() != "Update available: 1.0.0 → 2.0.0" {
		t.Errorf("Message() = %q", st.Message())
	}

	if _, ok := u.LastCheck(); !ok {
		t.Error("LastCheck() should be set after Check()")
	}
	if u.CheckOverdue() {
		t.Error("CheckOverdue() = true right after a check")
	}
}

func TestCheckOverdueAfterReminderInterval(t *testing.T) {
	remote := updatertest.NewRemote(t)
	cfg := updatertest.Config(t, remote)
	updatertest.Install(t, cfg.InstallRoot)

	clock := &fakeClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	u, err := New(cfg, WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	if _, err := u.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.now = clock.now.Add(23 * time.Hour)
	if u.CheckOverdue() {
		t.Error("CheckOverdue() = true after 23h")
	}
	clock.now = clock.now.Add(2 * time.Hour)
	if !u.CheckOverdue() {
		t.Error("CheckOverdue() = false after 25h")
	}
}

func TestStatusIsLocal(t *testing.T) {
	u, remote := newTestUpdater(t)

	s, err := u.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if s.Current != "1.0.0" || s.Latest != "" || s.Backup != nil || s.Busy {
		t.Errorf("Status() before check = %+v", s)
	}
	headerPath := "/" + updatertest.Repo + "/" + updatertest.Branch + "/" + updatertest.ComponentPath + "/style.css"
	if remote.Hits(headerPath) != 0 {
		t.Error("Status() must not fetch the remote header")
	}

	u.Check(context.Background())
	s, _ = u.Status()
	if s.Latest != "2.0.0" || !s.UpdateAvailable {
		t.Errorf("Status() after check = %+v", s)
	}
	if s.Components["header"] != "2.0" || s.Components["footer"] != "1.4" {
		t.Errorf("Components = %v", s.Components)
	}
	if _, ok := s.Components["status"]; ok {
		t.Error("status key must be filtered from components")
	}
	if s.LastCheck == nil {
		t.Error("LastCheck should be set")
	}
}

func TestUpdateThenRevert(t *testing.T) {
	u, _ := newTestUpdater(t)
	ctx := context.Background()
	root := u.Config().InstallRoot

	res := u.Update(ctx)
	if !res.Success {
		t.Fatalf("Update() failed: %s (%s)", res.Message, res.Code)
	}
	if res.Message != "Theme updated successfully" || res.Version != "2.0.0" {
		t.Errorf("Update() = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "inc", "new.php")); err != nil {
		t.Error("new file missing after update")
	}

	s, _ := u.Status()
	if s.Backup == nil || s.Backup.Version != "1.0.0" {
		t.Errorf("backup after update = %+v", s.Backup)
	}

	res = u.Revert(ctx)
	if !res.Success || res.Message != "Theme reverted successfully" {
		t.Fatalf("Revert() = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "inc", "old.php")); err != nil {
		t.Error("old file missing after revert")
	}
	if _, err := os.Stat(filepath.Join(root, "inc", "new.php")); !os.IsNotExist(err) {
		t.Error("new file still present after revert")
	}

	s, _ = u.Status()
	if s.SafetyCopies != 1 {
		t.Errorf("SafetyCopies = %d, want 1", s.SafetyCopies)
	}

	ops, err := u.History(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 || ops[0].Kind != store.KindRevert || ops[1].Kind != store.KindUpdate {
		t.Errorf("history = %+v", ops)
	}
}

func TestUpdateMissingComponent(t *testing.T) {
	u, remote := newTestUpdater(t)
	for name := range map[string]bool{
		updatertest.ComponentPath + "/style.css":     true,
		updatertest.ComponentPath + "/functions.php": true,
		updatertest.ComponentPath + "/inc/new.php":   true,
		updatertest.ComponentPath + "/versions.json": true,
	} {
		remote.RemoveFile(name)
	}

	res := u.Update(context.Background())
	if res.Success || res.Code != appErrors.CodeSubtreeNotFound {
		t.Fatalf("Update() = %+v, want subtree_not_found", res)
	}
	if got := u.Versions().Current(u.Config().InstallRoot); got != "1.0.0" {
		t.Errorf("installed version = %s, want 1.0.0", got)
	}
}

func TestWithoutInstallRoot(t *testing.T) {
	remote := updatertest.NewRemote(t)
	cfg := updatertest.Config(t, remote)
	cfg.InstallRoot = ""

	u, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer u.Close()

	if _, err := u.Engine(); !appErrors.IsCode(err, appErrors.CodeValidation) {
		t.Errorf("Engine() = %v, want validation error", err)
	}
	if res := u.Update(context.Background()); res.Success || res.Code != appErrors.CodeValidation {
		t.Errorf("Update() = %+v", res)
	}
	if _, err := u.Status(); err == nil {
		t.Error("Status() should fail without an installation root")
	}

	// The changelog does not need an installation.
	entries := u.Changelog().Entries(context.Background())
	if len(entries) != 2 || entries[0].Version != "2.0.0" {
		t.Errorf("Entries() = %+v", entries)
	}
}

func TestInvalidBackupPolicy(t *testing.T) {
	remote := updatertest.NewRemote(t)
	cfg := updatertest.Config(t, remote)
	cfg.OnBackupFailure = "sometimes"

	if _, err := New(cfg); !appErrors.IsCode(err, appErrors.CodeValidation) {
		t.Errorf("New() = %v, want validation error", err)
	}
}

func TestPing(t *testing.T) {
	u, remote := newTestUpdater(t)

	if err := u.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	remote.RemoveFile(updatertest.ComponentPath + "/style.css")
	if err := u.Ping(context.Background()); err == nil {
		t.Error("Ping() should fail when the header file is missing")
	}
}
