package app

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/engine"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater/updatertest"
)

func TestUpdateCommandFlags(t *testing.T) {
	for _, cmd := range []struct {
		name string
		yes  string
	}{
		{"update", "yes"},
		{"revert", "yes"},
	} {
		c, _, err := RootCmd.Find([]string{cmd.name})
		if err != nil {
			t.Fatalf("Find(%s): %v", cmd.name, err)
		}
		flag := c.Flags().Lookup(cmd.yes)
		if flag == nil || flag.DefValue != "false" {
			t.Errorf("%s --%s flag missing or not false by default", cmd.name, cmd.yes)
		}
	}
}

func TestRunUpdateDeclined(t *testing.T) {
	env := setupApp(t)
	stdin = strings.NewReader("n\n")

	out := captureStdout(t, func() {
		if err := runUpdate(updateCmd, nil); err != nil {
			t.Errorf("runUpdate() error: %v", err)
		}
	})

	if !strings.Contains(out, "Update available: 1.0.0 → 2.0.0") || !strings.Contains(out, "Update cancelled.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if v := installedVersion(t, env); v != "1.0.0" {
		t.Errorf("installed version = %s, want 1.0.0", v)
	}
}

func TestRunUpdateYes(t *testing.T) {
	env := setupApp(t)
	updateFlagYes = true

	out := captureStdout(t, func() {
		if err := runUpdate(updateCmd, nil); err != nil {
			t.Errorf("runUpdate() error: %v", err)
		}
	})

	if !strings.Contains(out, "✓ Theme updated successfully") || !strings.Contains(out, "(1.0.0 → 2.0.0)") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if v := installedVersion(t, env); v != "2.0.0" {
		t.Errorf("installed version = %s, want 2.0.0", v)
	}
}

func TestRunUpdateJSON(t *testing.T) {
	setupApp(t)
	jsonOutput = true

	out := captureStdout(t, func() {
		if err := runUpdate(updateCmd, nil); err != nil {
			t.Errorf("runUpdate() error: %v", err)
		}
	})

	var res engine.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("result JSON: %v\n%s", err, out)
	}
	if !res.Success || res.Version != "2.0.0" || res.PreviousVersion != "1.0.0" {
		t.Errorf("result = %+v", res)
	}
}

func TestRunUpdateMissingComponent(t *testing.T) {
	env := setupApp(t)
	updateFlagYes = true
	for _, name := range []string{"style.css", "functions.php", "inc/new.php", "versions.json"} {
		env.remote.RemoveFile(updatertest.ComponentPath + "/" + name)
	}

	var err error
	captureStdout(t, func() { err = runUpdate(updateCmd, nil) })

	if !appErrors.IsCode(err, appErrors.CodeSubtreeNotFound) {
		t.Errorf("runUpdate() error = %v, want subtree_not_found", err)
	}
	if v := installedVersion(t, env); v != "1.0.0" {
		t.Errorf("installed version = %s, want 1.0.0", v)
	}
}
