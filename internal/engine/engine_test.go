package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/archive"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/backup"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/remote"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/version"
)

const componentPath = "wp-content/themes/floorspace-v2"

type fakeFetcher struct {
	payload []byte
	err     error
	panics  bool
}

func (f *fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (f *fakeFetcher) Download(ctx context.Context, url, dst string) (int64, error) {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return 0, f.err
	}
	if err := os.WriteFile(dst, f.payload, 0644); err != nil {
		return 0, err
	}
	return int64(len(f.payload)), nil
}

type fakeVersions struct {
	invalidations int
}

func (v *fakeVersions) Current(root string) string {
	return version.ReadHeaderFile(filepath.Join(root, "style.css"))
}

func (v *fakeVersions) Invalidate() error {
	v.invalidations++
	return nil
}

type fakeHistory struct {
	mu  sync.Mutex
	ops []*store.Operation
}

func (h *fakeHistory) InsertOperation(op *store.Operation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, op)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Reset(ctx context.Context) error {
	c.calls++
	return nil
}

type harness struct {
	root     string
	engine   *Engine
	fetcher  *fakeFetcher
	versions *fakeVersions
	history  *fakeHistory
	inv      *countingInvalidator
	backups  *backup.Store
	locker   *Locker
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		root:     filepath.Join(base, "themes", "floorspace-v2"),
		fetcher:  &fakeFetcher{},
		versions: &fakeVersions{},
		history:  &fakeHistory{},
		inv:      &countingInvalidator{},
		backups:  backup.New(filepath.Join(base, "backups")),
		locker:   NewLocker(filepath.Join(base, "locks")),
	}
	allOpts := append([]Option{WithHistory(h.history), WithInvalidator(h.inv)}, opts...)
	h.engine = New(
		Installation{Root: h.root},
		Source{ArchiveURL: "https://api.example.test/repos/o/r/zipball/main", ComponentPath: componentPath},
		h.backups, h.versions, h.fetcher, h.locker, allOpts...,
	)
	return h
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree: %v", err)
	}
	return out
}

func sameTree(t *testing.T, got, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("tree has %d files, want %d: %v", len(got), len(want), keys(got))
	}
	for name, content := range want {
		if got[name] != content {
			t.Errorf("%s = %q, want %q", name, got[name], content)
		}
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range keys(entries) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(entries[name]))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

var installedFiles = map[string]string{
	"style.css":        "/*\nTheme Name: FloorSpace\nVersion: 1.0.0\n*/",
	"functions.php":    "<?php // v1",
	"inc/old.php":      "<?php // removed in v2",
	"assets/js/app.js": "console.log('v1')",
}

func remoteArchive(t *testing.T) []byte {
	return zipBytes(t, map[string]string{
		"o-r-abc123/README.md": "repo readme",
		"o-r-abc123/wp-content/themes/floorspace-v2/style.css":     "/*\nVersion: 2.0.0\n*/",
		"o-r-abc123/wp-content/themes/floorspace-v2/functions.php": "<?php // v2",
		"o-r-abc123/wp-content/themes/floorspace-v2/inc/new.php":   "<?php // new",
		"o-r-abc123/wp-content/plugins/other/plugin.php":           "<?php",
	})
}

func TestUpdateReplacesTree(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)
	h.fetcher.payload = remoteArchive(t)

	res := h.engine.Update(context.Background())
	if !res.Success {
		t.Fatalf("Update() failed: %s (%s)", res.Message, res.Code)
	}
	if res.Version != "2.0.0" || res.PreviousVersion != "1.0.0" {
		t.Errorf("versions = %s -> %s, want 1.0.0 -> 2.0.0", res.PreviousVersion, res.Version)
	}
	if res.OperationID == "" {
		t.Error("OperationID should be set")
	}

	sameTree(t, readTree(t, h.root), map[string]string{
		"style.css":     "/*\nVersion: 2.0.0\n*/",
		"functions.php": "<?php // v2",
		"inc/new.php":   "<?php // new",
	})

	b, ok := h.backups.Latest()
	if !ok || b.Version != "1.0.0" {
		t.Errorf("backup = %+v, %v; want version 1.0.0", b, ok)
	}
	if h.versions.invalidations != 1 {
		t.Errorf("version cache invalidated %d times, want 1", h.versions.invalidations)
	}
	if h.inv.calls != 1 {
		t.Errorf("cache reset called %d times, want 1", h.inv.calls)
	}

	if len(h.history.ops) != 1 {
		t.Fatalf("history has %d ops, want 1", len(h.history.ops))
	}
	op := h.history.ops[0]
	if op.Kind != store.KindUpdate || !op.Success || op.FromVersion != "1.0.0" || op.ToVersion != "2.0.0" {
		t.Errorf("history op = %+v", op)
	}

	// No staging or old trees left next to the installation.
	siblings, _ := os.ReadDir(filepath.Dir(h.root))
	if len(siblings) != 1 {
		t.Errorf("unexpected siblings of installation: %v", siblings)
	}
}

func TestUpdateFailuresLeaveTreeUnchanged(t *testing.T) {
	tests := []struct {
		name string
		set  func(t *testing.T, f *fakeFetcher)
		code appErrors.Code
	}{
		{
			name: "empty download",
			set:  func(t *testing.T, f *fakeFetcher) { f.payload = []byte{} },
			code: appErrors.CodeDownloadFailed,
		},
		{
			name: "http status",
			set: func(t *testing.T, f *fakeFetcher) {
				f.err = &remote.StatusError{URL: "u", StatusCode: 404}
			},
			code: appErrors.CodeDownloadFailed,
		},
		{
			name: "transport error",
			set:  func(t *testing.T, f *fakeFetcher) { f.err = errors.New("connection reset") },
			code: appErrors.CodeDownloadFailed,
		},
		{
			name: "not a zip",
			set:  func(t *testing.T, f *fakeFetcher) { f.payload = []byte("<html>rate limited</html>") },
			code: appErrors.CodeArchiveUnavailable,
		},
		{
			name: "subtree missing",
			set: func(t *testing.T, f *fakeFetcher) {
				f.payload = zipBytes(t, map[string]string{"o-r-1/wp-content/themes/other/style.css": "x"})
			},
			code: appErrors.CodeSubtreeNotFound,
		},
		{
			name: "component folder empty",
			set: func(t *testing.T, f *fakeFetcher) {
				f.payload = zipBytes(t, map[string]string{"o-r-1/wp-content/themes/floorspace-v2/": ""})
			},
			code: appErrors.CodeArchive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			writeTree(t, h.root, installedFiles)
			tt.set(t, h.fetcher)

			res := h.engine.Update(context.Background())
			if res.Success {
				t.Fatal("Update() should fail")
			}
			if res.Code != tt.code {
				t.Errorf("Code = %s, want %s", res.Code, tt.code)
			}
			sameTree(t, readTree(t, h.root), installedFiles)

			if h.versions.invalidations != 0 {
				t.Error("version cache must not be invalidated on failure")
			}
			if len(h.history.ops) != 1 || h.history.ops[0].Success {
				t.Errorf("failed update should be recorded: %+v", h.history.ops)
			}
		})
	}
}

func TestUpdateRejectsEscapingEntries(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)
	h.fetcher.payload = zipBytes(t, map[string]string{
		"o-r-1/wp-content/themes/floorspace-v2/style.css":         "Version: 9.9.9",
		"o-r-1/wp-content/themes/floorspace-v2/../../../evil.php": "<?php",
	})

	res := h.engine.Update(context.Background())
	if res.Success {
		t.Fatal("Update() should reject archives with escaping paths")
	}
	sameTree(t, readTree(t, h.root), installedFiles)

	base := filepath.Dir(filepath.Dir(h.root))
	if _, err := os.Stat(filepath.Join(base, "evil.php")); !os.IsNotExist(err) {
		t.Error("escaping entry was written")
	}
}

func TestUpdateFreshInstall(t *testing.T) {
	h := newHarness(t)
	h.fetcher.payload = remoteArchive(t)

	res := h.engine.Update(context.Background())
	if !res.Success {
		t.Fatalf("Update() failed: %s", res.Message)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning about the missing installation")
	}
	if res.PreviousVersion != version.NotInstalled {
		t.Errorf("PreviousVersion = %q, want %q", res.PreviousVersion, version.NotInstalled)
	}
	if _, ok := h.backups.Latest(); ok {
		t.Error("no backup should exist for a fresh install")
	}
}

func TestUpdateBackupPolicy(t *testing.T) {
	blockBackups := func(t *testing.T, h *harness) {
		// A regular file where the backup directory should be.
		if err := os.WriteFile(h.backups.Dir(), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("continue", func(t *testing.T) {
		h := newHarness(t)
		writeTree(t, h.root, installedFiles)
		blockBackups(t, h)
		h.fetcher.payload = remoteArchive(t)

		res := h.engine.Update(context.Background())
		if !res.Success {
			t.Fatalf("Update() failed: %s", res.Message)
		}
		if len(res.Warnings) != 1 {
			t.Errorf("Warnings = %v, want one backup warning", res.Warnings)
		}
	})

	t.Run("abort", func(t *testing.T) {
		h := newHarness(t, WithBackupPolicy(PolicyAbort))
		writeTree(t, h.root, installedFiles)
		blockBackups(t, h)
		h.fetcher.payload = remoteArchive(t)

		res := h.engine.Update(context.Background())
		if res.Success {
			t.Fatal("Update() should abort when the backup fails")
		}
		if res.Code != appErrors.CodeIO {
			t.Errorf("Code = %s, want %s", res.Code, appErrors.CodeIO)
		}
		sameTree(t, readTree(t, h.root), installedFiles)
	})
}

func TestUpdateCancelled(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)
	h.fetcher.payload = remoteArchive(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.engine.Update(ctx)
	if res.Success {
		t.Fatal("Update() should fail on a cancelled context")
	}
	sameTree(t, readTree(t, h.root), installedFiles)
}

func TestUpdateRecoversPanic(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)
	h.fetcher.panics = true

	res := h.engine.Update(context.Background())
	if res.Success || res.Code != appErrors.CodeUnknown {
		t.Fatalf("Update() = %+v, want unknown failure", res)
	}

	// The lock must have been released.
	lock, err := h.locker.Acquire(h.root)
	if err != nil {
		t.Fatalf("lock still held after panic: %v", err)
	}
	lock.Release()
}

func TestRevertRoundTrip(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)
	h.fetcher.payload = remoteArchive(t)

	if res := h.engine.Update(context.Background()); !res.Success {
		t.Fatalf("Update() failed: %s", res.Message)
	}

	res := h.engine.Revert(context.Background())
	if !res.Success {
		t.Fatalf("Revert() failed: %s (%s)", res.Message, res.Code)
	}
	if res.Version != "1.0.0" || res.PreviousVersion != "2.0.0" {
		t.Errorf("versions = %s -> %s, want 2.0.0 -> 1.0.0", res.PreviousVersion, res.Version)
	}

	sameTree(t, readTree(t, h.root), installedFiles)

	copies, err := h.backups.ListSafetyCopies()
	if err != nil || len(copies) != 1 || copies[0].Version != "2.0.0" {
		t.Errorf("safety copies = %v, %v; want one for 2.0.0", copies, err)
	}
	if h.versions.invalidations != 2 {
		t.Errorf("invalidations = %d, want 2", h.versions.invalidations)
	}
	if h.history.ops[1].Kind != store.KindRevert {
		t.Errorf("second op kind = %s", h.history.ops[1].Kind)
	}
}

func TestBackupThenRevertReproducesTree(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)

	if res := h.engine.Backup(context.Background()); !res.Success {
		t.Fatalf("Backup() failed: %s", res.Message)
	}
	if res := h.engine.Revert(context.Background()); !res.Success {
		t.Fatalf("Revert() failed: %s", res.Message)
	}
	sameTree(t, readTree(t, h.root), installedFiles)
}

func TestBackupThenRevertEmptyInstallation(t *testing.T) {
	h := newHarness(t)
	if err := os.MkdirAll(h.root, 0755); err != nil {
		t.Fatal(err)
	}

	if res := h.engine.Backup(context.Background()); !res.Success {
		t.Fatalf("Backup() failed: %s", res.Message)
	}
	writeTree(t, h.root, map[string]string{"stray.php": "<?php"})

	if res := h.engine.Revert(context.Background()); !res.Success {
		t.Fatalf("Revert() failed: %s (%s)", res.Message, res.Code)
	}
	sameTree(t, readTree(t, h.root), map[string]string{})
}

func TestSymlinkedInstallation(t *testing.T) {
	h := newHarness(t)
	target := filepath.Join(t.TempDir(), "releases", "floorspace-v2")
	writeTree(t, target, installedFiles)
	if err := os.MkdirAll(filepath.Dir(h.root), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, h.root); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if res := h.engine.Backup(context.Background()); !res.Success {
		t.Fatalf("Backup() failed: %s", res.Message)
	}
	b, ok := h.backups.Latest()
	if !ok {
		t.Fatal("backup slot is empty")
	}
	names, err := archive.Names(b.Path)
	if err != nil || len(names) != len(installedFiles) {
		t.Fatalf("backup entries = %v, %v; want %d files", names, err, len(installedFiles))
	}

	h.fetcher.payload = remoteArchive(t)
	if res := h.engine.Update(context.Background()); !res.Success {
		t.Fatalf("Update() failed: %s (%s)", res.Message, res.Code)
	}
	info, err := os.Lstat(h.root)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("installation root should still be a symlink: %v, %v", info, err)
	}
	if got := readTree(t, target); got["style.css"] != "/*\nVersion: 2.0.0\n*/" {
		t.Errorf("link target was not updated: %v", keys(got))
	}

	if res := h.engine.Revert(context.Background()); !res.Success {
		t.Fatalf("Revert() failed: %s (%s)", res.Message, res.Code)
	}
	sameTree(t, readTree(t, target), installedFiles)

	siblings, _ := os.ReadDir(filepath.Dir(target))
	if len(siblings) != 1 {
		t.Errorf("unexpected siblings of link target: %v", siblings)
	}
}

func TestRevertWithoutBackup(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)

	res := h.engine.Revert(context.Background())
	if res.Success || res.Code != appErrors.CodeNoBackupAvailable {
		t.Fatalf("Revert() = %+v, want no_backup_available", res)
	}
	sameTree(t, readTree(t, h.root), installedFiles)

	if copies, _ := h.backups.ListSafetyCopies(); len(copies) != 0 {
		t.Error("no safety copy should be made when there is nothing to revert to")
	}
}

func TestOperationsAreSerialized(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)
	h.fetcher.payload = remoteArchive(t)

	lock, err := h.locker.Acquire(h.root)
	if err != nil {
		t.Fatal(err)
	}

	res := h.engine.Update(context.Background())
	if res.Success || res.Code != appErrors.CodeBusy {
		t.Fatalf("Update() = %+v, want busy", res)
	}
	sameTree(t, readTree(t, h.root), installedFiles)

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if res := h.engine.Update(context.Background()); !res.Success {
		t.Errorf("Update() after release failed: %s", res.Message)
	}
}

func TestDeleteBackup(t *testing.T) {
	h := newHarness(t)
	writeTree(t, h.root, installedFiles)

	res := h.engine.DeleteBackup(context.Background())
	if res.Success || appErrors.KindOf(res.Code) != appErrors.CodeNotFound {
		t.Errorf("DeleteBackup() without backup = %+v", res)
	}

	h.engine.Backup(context.Background())
	if res := h.engine.DeleteBackup(context.Background()); !res.Success {
		t.Errorf("DeleteBackup() failed: %s", res.Message)
	}
	if _, ok := h.backups.Latest(); ok {
		t.Error("backup should be gone")
	}
}

func TestParseBackupPolicy(t *testing.T) {
	for in, want := range map[string]BackupPolicy{"": PolicyContinue, "continue": PolicyContinue, "abort": PolicyAbort} {
		got, err := ParseBackupPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseBackupPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBackupPolicy("ignore"); err == nil {
		t.Error("ParseBackupPolicy(ignore) should fail")
	}
}
