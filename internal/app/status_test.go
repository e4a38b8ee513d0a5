package app

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

func TestRunStatus(t *testing.T) {
	env := setupApp(t)

	out := captureStdout(t, func() {
		if err := runStatus(statusCmd, nil); err != nil {
			t.Errorf("runStatus() error: %v", err)
		}
	})

	for _, want := range []string{env.installRoot, "1.0.0", "unknown", "never", "Tip:"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q\nGot:\n%s", want, out)
		}
	}
	if strings.Contains(out, "API server running") {
		t.Error("status should not report a running API server")
	}
}

func TestRunStatusAfterCheck(t *testing.T) {
	setupApp(t)

	captureStdout(t, func() {
		if err := runCheck(checkCmd, nil); err != nil {
			t.Errorf("runCheck() error: %v", err)
		}
	})

	jsonOutput = true
	out := captureStdout(t, func() {
		if err := runStatus(statusCmd, nil); err != nil {
			t.Errorf("runStatus() error: %v", err)
		}
	})

	var st updater.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("status JSON: %v\n%s", err, out)
	}
	if st.Latest != "2.0.0" || !st.UpdateAvailable || st.CheckOverdue || st.LastCheck == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestRunStatusWithoutInstallRoot(t *testing.T) {
	setupApp(t)
	cfgFile = ""

	if err := runStatus(statusCmd, nil); err == nil || !strings.Contains(err.Error(), "install_root") {
		t.Errorf("runStatus() error = %v, want install_root error", err)
	}
}

func TestRunCheck(t *testing.T) {
	setupApp(t)

	out := captureStdout(t, func() {
		if err := runCheck(checkCmd, nil); err != nil {
			t.Errorf("runCheck() error: %v", err)
		}
	})

	for _, want := range []string{"Update available: 1.0.0 → 2.0.0", "Component versions", "footer", "1.4", "themeupdater update"} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q\nGot:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stable") {
		t.Error("manifest bookkeeping keys must not be listed as components")
	}
}
