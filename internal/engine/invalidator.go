package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Invalidator resets a compiled-code cache after the installation tree
// changes. Engines tolerate a nil Invalidator.
type Invalidator interface {
	Reset(ctx context.Context) error
}

// CommandInvalidator runs a shell command, for example a request to the
// PHP-FPM status endpoint or a service reload.
type CommandInvalidator struct {
	Command string
}

// Reset runs the command with sh -c. An empty command is a no-op.
func (c CommandInvalidator) Reset(ctx context.Context) error {
	if strings.TrimSpace(c.Command) == "" {
		return nil
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", c.Command).CombinedOutput()
	if err != nil {
		return fmt.Errorf("cache reset command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
