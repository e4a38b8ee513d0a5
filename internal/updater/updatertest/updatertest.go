// Package updatertest provides a fake repository host and a matching
// configuration for tests of packages built on the updater.
package updatertest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/config"
)

const (
	Repo          = "websitetown/floorspace-site"
	Branch        = "dev_v1"
	Component     = "floorspace-v2"
	ComponentPath = "wp-content/themes/floorspace-v2"
)

// Changelog is the default changelog served by Remote.
const Changelog = `# Changelog

## [2.0.0] - 2025-03-01
### Security
- Patched an XSS issue in the search form

## [1.0.0] - 2025-01-15
- Initial release
`

// Remote is a fake repository host serving raw files and a branch archive.
type Remote struct {
	Server *httptest.Server

	mu    sync.Mutex
	files map[string]string // repo-relative path -> content
	hits  map[string]int
}

// NewRemote starts a fake host serving version 2.0.0 of the component.
func NewRemote(t *testing.T) *Remote {
	t.Helper()
	r := &Remote{
		files: map[string]string{
			ComponentPath + "/style.css":     "/*\nTheme Name: FloorSpace\nVersion: 2.0.0\n*/",
			ComponentPath + "/functions.php": "<?php // v2",
			ComponentPath + "/inc/new.php":   "<?php // new in v2",
			ComponentPath + "/versions.json": `{"header": "2.0", "footer": "1.4", "status": "stable"}`,
			"CHANGELOG.md":                   Changelog,
			"README.md":                      "repository readme",
		},
		hits: map[string]int{},
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Server.Close)
	return r
}

// SetFile replaces or adds a repository file.
func (r *Remote) SetFile(path, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
}

// RemoveFile deletes a repository file.
func (r *Remote) RemoveFile(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}

// Hits returns how often a URL path was requested.
func (r *Remote) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func (r *Remote) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[req.URL.Path]++

	if req.URL.Path == "/repos/"+Repo+"/zipball/"+Branch {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(r.archive())
		return
	}

	prefix := "/" + Repo + "/" + Branch + "/"
	if len(req.URL.Path) > len(prefix) && req.URL.Path[:len(prefix)] == prefix {
		if content, ok := r.files[req.URL.Path[len(prefix):]]; ok {
			w.Write([]byte(content))
			return
		}
	}
	http.NotFound(w, req)
}

// archive builds the branch zipball with the usual top-level folder.
// Must be called with mu held.
func (r *Remote) archive() []byte {
	names := make([]string, 0, len(r.files))
	for name := range r.files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create("websitetown-floorspace-site-1a2b3c4/" + name)
		if err != nil {
			panic(err)
		}
		w.Write([]byte(r.files[name]))
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// InstalledFiles is the tree written by Install.
var InstalledFiles = map[string]string{
	"style.css":     "/*\nTheme Name: FloorSpace\nVersion: 1.0.0\n*/",
	"functions.php": "<?php // v1",
	"inc/old.php":   "<?php // removed in v2",
}

// Install writes InstalledFiles below root.
func Install(t *testing.T, root string) {
	t.Helper()
	for name, content := range InstalledFiles {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// Config returns a configuration pointing at remote, with data and the
// installation under a temp dir. The installation is not created.
func Config(t *testing.T, remote *Remote) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Repo:            Repo,
		Branch:          Branch,
		Component:       Component,
		ComponentPath:   ComponentPath,
		InstallRoot:     filepath.Join(base, "wp-content", "themes", Component),
		HeaderFile:      "style.css",
		ChangelogPath:   "CHANGELOG.md",
		ManifestFile:    "versions.json",
		DataDir:         filepath.Join(base, "data"),
		BackupDir:       filepath.Join(base, "data", "backups"),
		CacheTTL:        5 * time.Minute,
		Timeout:         time.Minute,
		RawBaseURL:      remote.Server.URL,
		APIBaseURL:      remote.Server.URL,
		UserAgent:       "themeupdater-test",
		OnBackupFailure: "continue",
		NATSSubject:     config.DefaultNATSSubject,
		ListenAddr:      "127.0.0.1:0",
		LogLevel:        "info",
		LogFormat:       "console",
	}
}
