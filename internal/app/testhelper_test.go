package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater/updatertest"
)

// testEnv is an isolated home with a config file pointing at a fake
// repository and an installed theme at version 1.0.0.
type testEnv struct {
	remote      *updatertest.Remote
	home        string
	installRoot string
	dataDir     string
	configFile  string
}

func setupApp(t *testing.T) *testEnv {
	t.Helper()
	remote := updatertest.NewRemote(t)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	env := &testEnv{
		remote:      remote,
		home:        home,
		installRoot: filepath.Join(home, "site", "wp-content", "themes", updatertest.Component),
		dataDir:     filepath.Join(home, ".themeupdater"),
		configFile:  filepath.Join(home, "config.yaml"),
	}
	updatertest.Install(t, env.installRoot)

	content := fmt.Sprintf(`repo: %s
branch: %s
component: %s
install_root: %s
data_dir: %s
raw_base_url: %s
api_base_url: %s
timeout: 1m
log_level: error
`, updatertest.Repo, updatertest.Branch, updatertest.Component,
		env.installRoot, env.dataDir, remote.Server.URL, remote.Server.URL)
	if err := os.WriteFile(env.configFile, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	resetFlags(t)
	cfgFile = env.configFile
	return env
}

// resetFlags clears every command flag variable now and after the test.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		cfgFile, installRoot, dataDir, logLevel, logFormat = "", "", "", "", ""
		jsonOutput = false
		updateFlagYes, revertFlagYes = false, false
		backupDeleteYes, backupSafetyPrune = false, 0
		changelogRefresh, changelogHTML, changelogWidth = false, false, 80
		historyLimit = 20
		serveAddr, servePIDFile, serveLogFile = "", "", ""
		serveWatch, serveDaemon, serveDaemonChild, serveStop = false, false, false, false
		stdin = strings.NewReader("")
		exitFunc = os.Exit
	}
	reset()
	t.Cleanup(reset)
}

// captureStdout replaces os.Stdout with a pipe during f(), then restores it
// and returns all bytes written to stdout.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = origStdout }()

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		buf.ReadFrom(r)
		done <- buf.String()
	}()

	f()

	w.Close()
	return <-done
}

func installedVersion(t *testing.T, env *testEnv) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.installRoot, "style.css"))
	if err != nil {
		t.Fatalf("read style.css: %v", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "Version: "); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
