// Package botctl starts, stops and inspects a detached bot process
// tracked through a PID file.
package botctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/lmittmann/tint"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPIDFile      = "bot.pid"
	DefaultLogFile      = "bot.log"
	DefaultStartupGrace = 2 * time.Second
	DefaultStopTimeout  = 5 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTailLines    = 15
)

var (
	ErrAlreadyRunning = errors.New("bot is already running")
	ErrNotRunning     = errors.New("bot is not running")
	ErrStartFailed    = errors.New("bot exited during startup")
)

// StartError is returned when the child process exits before the
// startup grace period has elapsed.
type StartError struct {
	ExitCode int
	Err      error
	LogTail  []string
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("%s (exit code %d)", ErrStartFailed, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StartError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStartFailed}
	}
	return []error{ErrStartFailed, e.Err}
}

type Controller struct {
	PIDFile    string
	LogFile    string
	Executable string
	Args       []string

	// Env is appended to the current environment of the child.
	Env []string

	StartupGrace time.Duration
	StopTimeout  time.Duration
	PollInterval time.Duration
	TailLines    int

	Logger *slog.Logger
}

// New returns a Controller keeping its PID and log files in dir.
func New(dir string, executable string, args ...string) *Controller {
	return &Controller{
		PIDFile:      filepath.Join(dir, DefaultPIDFile),
		LogFile:      filepath.Join(dir, DefaultLogFile),
		Executable:   executable,
		Args:         args,
		StartupGrace: DefaultStartupGrace,
		StopTimeout:  DefaultStopTimeout,
		PollInterval: DefaultPollInterval,
		TailLines:    DefaultTailLines,
	}
}

type Status struct {
	Running bool     `json:"running"`
	PID     int      `json:"pid,omitempty"`
	LogFile string   `json:"log_file"`
	LogTail []string `json:"log_tail,omitempty"`

	// StalePID is set when a PID file pointed at a dead process and was
	// removed.
	StalePID int `json:"stale_pid,omitempty"`
}

type StopResult struct {
	PID int `json:"pid"`

	// Forced is true when the process ignored the termination request
	// and had to be killed.
	Forced bool `json:"forced"`
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Start launches the bot detached from the current process, with its
// output appended to LogFile, and returns the new PID once the child
// has survived StartupGrace.
func (c *Controller) Start(ctx context.Context) (int, error) {
	logger := c.logger()

	pid, running, err := c.runningPID()
	if err != nil {
		return 0, err
	}
	if running {
		return pid, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if dir := filepath.Dir(c.LogFile); dir != "" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating log directory: %w", err)
		}
	}
	logFile, err := os.OpenFile(
		c.LogFile,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return 0, fmt.Errorf("opening log file: %w", err)
	}
	defer func() {
		_ = logFile.Close()
	}()

	cmd := exec.Command(c.Executable, c.Args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), c.Env...)
	detach(cmd)

	logger.Info(
		"starting bot",
		"executable", c.Executable,
		"args", c.Args,
		"log_file", c.LogFile,
	)
	if err = cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", c.Executable, err)
	}
	pid = cmd.Process.Pid

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	grace := time.NewTimer(c.StartupGrace)
	defer grace.Stop()

	select {
	case waitErr := <-exited:
		c.removePIDFile()
		startErr := &StartError{
			ExitCode: cmd.ProcessState.ExitCode(),
			LogTail:  c.tail(),
		}
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			startErr.Err = waitErr
		}
		logger.Error(
			"bot exited during startup",
			"pid", pid,
			"exit_code", startErr.ExitCode,
		)
		return pid, startErr
	case <-ctx.Done():
		_ = kill(pid)
		<-exited
		c.removePIDFile()
		return pid, ctx.Err()
	case <-grace.C:
	}

	if err = c.writePID(pid); err != nil {
		_ = kill(pid)
		return pid, err
	}
	logger.Info("bot started", "pid", pid, "pid_file", c.PIDFile)
	return pid, nil
}

// Stop asks the process named in PIDFile to terminate, waits up to
// StopTimeout, and kills it if it is still alive. ErrNotRunning is
// returned when there is nothing to stop.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	logger := c.logger()

	pid, running, err := c.runningPID()
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		if pid > 0 {
			return StopResult{PID: pid}, fmt.Errorf(
				"%w: removed stale pid file (pid %d)",
				ErrNotRunning,
				pid,
			)
		}
		return StopResult{}, ErrNotRunning
	}

	rv := StopResult{PID: pid}
	logger.Info("stopping bot", "pid", pid)
	if err = terminate(pid); err != nil && processAlive(pid) {
		return rv, fmt.Errorf("terminating pid %d: %w", pid, err)
	}

	if !c.waitExit(ctx, pid) {
		logger.Warn(
			"bot did not exit in time, killing it",
			"pid", pid,
			"timeout", c.StopTimeout,
		)
		rv.Forced = true
		if err = kill(pid); err != nil && processAlive(pid) {
			return rv, fmt.Errorf("killing pid %d: %w", pid, err)
		}
	}

	c.removePIDFile()
	logger.Info("bot stopped", "pid", pid, "forced", rv.Forced)
	return rv, ctx.Err()
}

// Status reports whether the process named in PIDFile is alive, along
// with the last lines of LogFile. A PID file pointing at a dead
// process is removed.
func (c *Controller) Status() (Status, error) {
	rv := Status{LogFile: c.LogFile}
	pid, running, err := c.runningPID()
	if err != nil {
		return rv, err
	}
	if running {
		rv.Running = true
		rv.PID = pid
	} else if pid > 0 {
		rv.StalePID = pid
	}
	rv.LogTail = c.tail()
	return rv, nil
}

// runningPID reads PIDFile. A missing file yields pid 0. A file
// naming a dead process (or holding garbage) is removed, and the
// stale pid is returned with running=false.
func (c *Controller) runningPID() (pid int, running bool, err error) {
	data, err := os.ReadFile(c.PIDFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading pid file: %w", err)
	}

	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		c.logger().Warn(
			"removing invalid pid file",
			"pid_file", c.PIDFile,
			"content", string(data),
		)
		c.removePIDFile()
		return 0, false, nil
	}

	if processAlive(pid) {
		return pid, true, nil
	}
	c.logger().Info("removing stale pid file", "pid", pid, "pid_file", c.PIDFile)
	c.removePIDFile()
	return pid, false, nil
}

func (c *Controller) waitExit(ctx context.Context, pid int) bool {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.StopTimeout)
	defer deadline.Stop()

	for {
		if !processAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !processAlive(pid)
		case <-ticker.C:
		}
	}
}

func (c *Controller) writePID(pid int) error {
	if dir := filepath.Dir(c.PIDFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating pid directory: %w", err)
		}
	}
	if err := os.WriteFile(
		c.PIDFile,
		[]byte(strconv.Itoa(pid)),
		0o644,
	); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

func (c *Controller) removePIDFile() {
	err := os.Remove(c.PIDFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger().Warn("unable to remove pid file", "pid_file", c.PIDFile, tint.Err(err))
	}
}

func (c *Controller) tail() []string {
	n := c.TailLines
	if n <= 0 {
		n = DefaultTailLines
	}
	lines, err := tailFile(c.LogFile, n)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger().Warn("unable to read log file", "log_file", c.LogFile, tint.Err(err))
	}
	return lines
}

// tailFile returns up to the last n lines of the file at path.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, scanner.Text())
	}
	if len(ring) == 0 {
		return nil, scanner.Err()
	}
	return ring, scanner.Err()
}
