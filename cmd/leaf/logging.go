package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// setupLogging installs the default logger. Records go to the log file so
// they never interleave with the guest's terminal output. Every record
// carries the boot id of this process.
func setupLogging(path, level string, toStderr bool, bootID string) (io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if toStderr {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)).With("boot_id", bootID))
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, opts)).With("boot_id", bootID))
	return f, nil
}

func newBootID() string {
	return uuid.NewString()
}
