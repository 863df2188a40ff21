package linterpool

import (
	"context"
	"os/exec"
)

func newCommand(ctx context.Context, binaryPath string, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, binaryPath, args...)
}

// exitCodeOf extracts the process exit code, treating a nil error as 0 and
// anything other than *exec.ExitError (e.g. the binary was never found)
// as -1.
func exitCodeOf(cmd *exec.Cmd, runErr error) int {
	if runErr == nil {
		return 0
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
