package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/benaskins/leaf/internal/logbuf"
)

// NativeDriver runs one guest as a native child process attached to the
// terminal. Only one guest may be in flight per driver.
type NativeDriver struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	forward []os.Signal
	absorb  []os.Signal
	grace   time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     State
	startedAt time.Time
	exitCode  int
	exitErr   string
	buf       *logbuf.Ring
	done      chan struct{}
}

// NativeConfig holds configuration for the native driver.
type NativeConfig struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Forward lists signals relayed to the guest while Launch waits.
	Forward []os.Signal
	// Absorb lists signals caught but not relayed, typically the terminal
	// interrupt that the guest already received from its process group.
	Absorb []os.Signal
	// GracePeriod is how long a cancelled guest gets between SIGTERM and
	// SIGKILL. Zero means 5s.
	GracePeriod time.Duration
	BufSize     int // stderr ring buffer size (lines), 0 for default
}

// NewNative creates a new native guest driver. Unset streams default to
// the parent's standard streams.
func NewNative(cfg NativeConfig) *NativeDriver {
	bufSize := cfg.BufSize
	if bufSize <= 0 {
		bufSize = 200
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}

	d := &NativeDriver{
		stdin:   cfg.Stdin,
		stdout:  cfg.Stdout,
		stderr:  cfg.Stderr,
		forward: cfg.Forward,
		absorb:  cfg.Absorb,
		grace:   grace,
		logger:  slog.With("component", "driver"),
		state:   StateIdle,
		buf:     logbuf.New(bufSize),
	}
	if d.stdin == nil {
		d.stdin = os.Stdin
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	return d
}

// Start spawns the guest and returns immediately. The child runs in
// inv.WorkDir; the parent's working directory is never changed.
func (d *NativeDriver) Start(inv Invocation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateRunning || d.state == StateStopping {
		return fmt.Errorf("guest already running")
	}

	cmd := exec.Command(inv.Executable, inv.Args()...)
	cmd.Dir = inv.WorkDir
	cmd.Env = inv.Env
	cmd.Stdin = d.stdin
	cmd.Stdout = d.stdout
	// Tee stderr so the tail can be shown after the guest exits
	cmd.Stderr = io.MultiWriter(d.stderr, d.buf)
	cmd.WaitDelay = d.grace
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		d.state = StateFailed
		d.exitErr = err.Error()
		return &LaunchError{Reason: SpawnFailed, Executable: inv.Executable, Err: err}
	}

	d.cmd = cmd
	d.state = StateRunning
	d.startedAt = time.Now()
	d.exitCode = 0
	d.exitErr = ""
	d.done = make(chan struct{})

	d.logger.Info("guest started",
		"pid", cmd.Process.Pid,
		"executable", inv.Executable,
		"entry", inv.Entry,
		"work_dir", inv.WorkDir,
		"boot_class", inv.BootClass)

	go func() {
		err := cmd.Wait()
		d.mu.Lock()
		defer d.mu.Unlock()

		d.exitCode = exitStatus(cmd.ProcessState)
		if err != nil {
			d.exitErr = err.Error()
		}
		if cmd.ProcessState != nil {
			d.state = StateExited
		} else {
			d.state = StateFailed
		}
		close(d.done)
	}()

	return nil
}

// Launch starts the guest and blocks until it exits. While it waits,
// Forward signals are relayed to the guest and Absorb signals are
// swallowed so the parent outlives its child. Cancelling ctx stops the
// guest, allowing it the grace period before it is killed.
func (d *NativeDriver) Launch(ctx context.Context, inv Invocation) (int, error) {
	var sigCh chan os.Signal
	if watched := append(slices.Clone(d.forward), d.absorb...); len(watched) > 0 {
		sigCh = make(chan os.Signal, 4)
		signal.Notify(sigCh, watched...)
		defer signal.Stop(sigCh)
	}

	if err := d.Start(inv); err != nil {
		return -1, err
	}

	d.mu.Lock()
	done := d.done
	d.mu.Unlock()

	cancelled := ctx.Done()
	for {
		select {
		case <-cancelled:
			cancelled = nil
			d.logger.Info("boot cancelled, stopping guest", "grace_period", d.grace)
			if err := d.Stop(context.Background(), d.grace); err != nil {
				d.logger.Warn("stopping guest failed", "error", err)
			}
		case sig := <-sigCh:
			if !slices.Contains(d.forward, sig) {
				d.logger.Debug("signal absorbed while guest runs", "signal", sig)
				continue
			}
			d.logger.Info("forwarding signal to guest", "signal", sig)
			if err := d.Signal(sig); err != nil {
				d.logger.Warn("forwarding signal failed", "signal", sig, "error", err)
			}
		case <-done:
			code, err := d.Wait()
			info := d.Info()
			d.logger.Info("guest exited",
				"pid", info.PID,
				"exit_code", code,
				"uptime", time.Since(info.StartedAt).Round(time.Millisecond),
				"wait_error", info.Error)
			return code, err
		}
	}
}

// Signal delivers sig to the running guest.
func (d *NativeDriver) Signal(sig os.Signal) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateRunning && d.state != StateStopping {
		return fmt.Errorf("guest not running")
	}
	return d.cmd.Process.Signal(sig)
}

// Stop sends SIGTERM, waits up to timeout, then kills the guest.
func (d *NativeDriver) Stop(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return nil
	}
	d.state = StateStopping
	proc := d.cmd.Process
	done := d.done
	d.mu.Unlock()

	_ = proc.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		_ = proc.Kill()
		<-done
		return nil
	case <-ctx.Done():
		_ = proc.Kill()
		<-done
		return ctx.Err()
	}
}

// Info returns current process state and metadata.
func (d *NativeDriver) Info() ProcessInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := ProcessInfo{
		State:     d.state,
		StartedAt: d.startedAt,
		ExitCode:  d.exitCode,
		Error:     d.exitErr,
	}
	if d.cmd != nil && d.cmd.Process != nil {
		info.PID = d.cmd.Process.Pid
	}
	return info
}

// Wait blocks until the guest exits and returns its exit status.
func (d *NativeDriver) Wait() (int, error) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()

	if done == nil {
		return -1, fmt.Errorf("guest not started")
	}
	<-done

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitCode, nil
}

// LogTail returns the last n lines the guest wrote to stderr, joined with
// newlines.
func (d *NativeDriver) LogTail(n int) string {
	return d.buf.Tail(n)
}

// exitStatus maps a finished process to a shell-style status: the exit
// code, or 128+signo when the guest was killed by a signal.
func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
