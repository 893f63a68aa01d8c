// Package hostinfo reports the host identity and guest runtime version
// consumed by preflight.
package hostinfo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Host returns the host-OS identifier in the vocabulary guest registries
// use: "Linux", "Darwin", "Windows", or the capitalized GOOS otherwise.
func Host() string {
	return hostName(runtime.GOOS)
}

func hostName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	case "":
		return ""
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}

// DefaultInterpreter is the host interpreter used when a guest runs
// without an isolated environment.
func DefaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// InterpreterVersion runs "<interpreter> --version" and returns the bare
// version string, e.g. "3.11.4".
func InterpreterVersion(ctx context.Context, interpreter string) (string, error) {
	cmd := exec.CommandContext(ctx, interpreter, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running %s --version: %w", interpreter, err)
	}
	return ParseVersionOutput(out.String())
}

// ParseVersionOutput extracts the version from output such as
// "Python 3.11.4". The last whitespace-separated field of the first
// line is taken.
func ParseVersionOutput(output string) (string, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty version output")
	}
	return fields[len(fields)-1], nil
}
