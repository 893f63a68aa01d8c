package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/benaskins/leaf/internal/audit"
	"github.com/benaskins/leaf/internal/boot"
	"github.com/benaskins/leaf/internal/config"
	"github.com/benaskins/leaf/internal/driver"
	"github.com/benaskins/leaf/internal/envs"
	"github.com/benaskins/leaf/internal/guest"
	"github.com/benaskins/leaf/internal/hostinfo"
	"github.com/benaskins/leaf/internal/preflight"
	"github.com/benaskins/leaf/internal/state"
)

// app holds everything one leaf invocation loaded from its home.
type app struct {
	home     string
	cfgPath  string
	cfg      *config.Config
	bootID   string
	registry *guest.Registry
	state    *state.File
	envs     *envs.Provisioner

	// regErr is kept so "check" can report a broken registry instead of
	// failing to start.
	regErr error

	// stdin is shared by the menu and the guest it boots.
	stdin  io.Reader
	stdout io.Writer

	closers   []io.Closer
	closeOnce sync.Once
}

// loadApp reads config, installs logging and loads the registry. With
// bootstrap set, a missing home, config and registry are created first.
func loadApp(bootstrap bool) (*app, error) {
	home, err := leafHome()
	if err != nil {
		return nil, fmt.Errorf("resolving leaf home: %w", err)
	}
	a := &app{
		home:    home,
		cfgPath: configPath(home),
		bootID:  newBootID(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}

	if bootstrap {
		if err := os.MkdirAll(home, 0700); err != nil {
			return nil, fmt.Errorf("creating leaf home: %w", err)
		}
		if _, err := config.WriteDefault(a.cfgPath); err != nil {
			return nil, err
		}
	}

	a.cfg, err = config.Load(a.cfgPath, home)
	if err != nil {
		return nil, err
	}

	level := a.cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	toStderr := flagLogStderr
	if !toStderr {
		// Without a home there is nowhere to put the log file yet
		if _, err := os.Stat(home); err != nil {
			toStderr = true
		}
	}
	logCloser, err := setupLogging(logPath(home), level, toStderr, a.bootID)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, logCloser)

	if bootstrap {
		if err := guest.Bootstrap(a.cfg.Registry); err != nil {
			a.Close()
			return nil, fmt.Errorf("creating registry: %w", err)
		}
	}
	a.registry, a.regErr = guest.Load(a.cfg.Registry)

	a.state = state.NewFile(a.cfg.StateFile)
	a.envs = envs.NewProvisioner(envs.Config{
		Root:        a.cfg.EnvsRoot,
		Interpreter: a.cfg.Interpreter,
	})

	slog.Debug("leaf loaded",
		"home", home,
		"config", a.cfgPath,
		"registry", a.cfg.Registry,
		"host", a.cfg.Host,
		"interpreter", a.cfg.Interpreter)
	return a, nil
}

// runtimeVersion reports the guest runtime version, from config when
// overridden.
func (a *app) runtimeVersion(ctx context.Context) (string, error) {
	if a.cfg.RuntimeVersion != "" {
		return a.cfg.RuntimeVersion, nil
	}
	return hostinfo.InterpreterVersion(ctx, a.cfg.Interpreter)
}

func (a *app) validator() *preflight.Validator {
	return preflight.NewValidator(a.cfg.Host, a.runtimeVersion)
}

func (a *app) launcher() *driver.NativeDriver {
	return driver.NewNative(driver.NativeConfig{
		Forward: []os.Signal{syscall.SIGTERM},
		// The terminal already delivers ^C to the guest's process group
		Absorb:      []os.Signal{os.Interrupt},
		GracePeriod: a.cfg.StopGrace.Duration,
	})
}

// orchestrator wires the boot pipeline. The history log is opened here
// and closed with the app.
func (a *app) orchestrator() (*boot.Orchestrator, error) {
	history, err := audit.NewLogger(a.cfg.HistoryFile)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, history)

	return boot.New(boot.Config{
		Registry:  a.registry,
		Preflight: a.validator(),
		Envs:      a.envs,
		Launcher:  a.launcher(),
		State:     a.state,
		History:   history,
		BootID:    a.bootID,
	}), nil
}

// Close flushes and closes files. It runs before a reboot replaces the
// process and is safe to call more than once.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i].Close()
		}
	})
}
