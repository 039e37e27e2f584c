package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/log"
)

const (
	// maxStderrBytes caps the amount of stderr kept per invocation.
	maxStderrBytes = 64 * 1024

	// defaultKillGrace is the time between SIGTERM and SIGKILL on timeout.
	defaultKillGrace = 5 * time.Second

	// stderrWaitDelay bounds how long Wait keeps copying stderr after the
	// shell has exited. Background children inherit the pipe and may hold it
	// open indefinitely.
	stderrWaitDelay = 250 * time.Millisecond
)

// DefaultInterpreter runs commands through the POSIX shell.
var DefaultInterpreter = []string{"/bin/sh", "-c"}

// ShellConfig configures a ShellRunner.
type ShellConfig struct {
	// Interpreter is the argv prefix the command string is appended to.
	Interpreter []string
	// Timeout bounds a single invocation. Zero disables it.
	Timeout time.Duration
	// KillGrace is the wait between SIGTERM and SIGKILL after a timeout.
	KillGrace time.Duration
}

// ShellRunner executes execution.Shell requests as child processes.
type ShellRunner struct {
	interpreter []string
	timeout     time.Duration
	killGrace   time.Duration
	logger      *slog.Logger
}

// NewShellRunner creates a ShellRunner, filling unset fields with defaults.
func NewShellRunner(cfg ShellConfig) *ShellRunner {
	interp := cfg.Interpreter
	if len(interp) == 0 {
		interp = DefaultInterpreter
	}
	grace := cfg.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}
	return &ShellRunner{
		interpreter: append([]string(nil), interp...),
		timeout:     cfg.Timeout,
		killGrace:   grace,
		logger:      log.WithComponent("runner"),
	}
}

// Execute starts the command and returns once the process is running. The
// command's completion is reported on sink from a separate goroutine. If the
// process cannot be started the request is rejected and nothing is sent.
func (s *ShellRunner) Execute(req execution.Request, sink chan<- execution.Response) error {
	spec, ok := req.Runner.(execution.Shell)
	if !ok {
		return fmt.Errorf("%w: shell runner cannot execute %T", ErrRejected, req.Runner)
	}
	if strings.TrimSpace(spec.Command) == "" {
		return fmt.Errorf("%w: empty command", ErrRejected)
	}

	args := append(append([]string(nil), s.interpreter[1:]...), spec.Command)
	cmd := exec.Command(s.interpreter[0], args...)
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr
	cmd.WaitDelay = stderrWaitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrRejected, s.interpreter[0], err)
	}

	jobLogger := log.WithRequest(req.ID, req.JobID).With("component", "runner", "pid", cmd.Process.Pid)
	jobLogger.Debug("shell command started", "command", spec.Command)

	go s.wait(req, cmd, stderr, sink, jobLogger)
	return nil
}

// wait blocks until the process exits or times out and emits the one response.
func (s *ShellRunner) wait(
	req execution.Request,
	cmd *exec.Cmd,
	stderr *cappedBuffer,
	sink chan<- execution.Response,
	logger *slog.Logger,
) {
	start := time.Now()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var err error
	timedOut := false
	select {
	case err = <-waitErr:
		if errors.Is(err, exec.ErrWaitDelay) {
			// The shell exited cleanly; a descendant still holds stderr.
			logger.Debug("shell command left background processes running")
			err = nil
		}
	case <-deadline:
		timedOut = true
		logger.Warn("shell command timed out, sending SIGTERM", "timeout", s.timeout)
		if serr := signalGroup(cmd, sigterm); serr != nil {
			logger.Error("failed to send SIGTERM", "error", serr)
		}

		grace := time.NewTimer(s.killGrace)
		defer grace.Stop()

		select {
		case err = <-waitErr:
			logger.Info("shell command exited after SIGTERM")
		case <-grace.C:
			logger.Warn("shell command did not exit after SIGTERM, sending SIGKILL")
			if kerr := signalGroup(cmd, sigkill); kerr != nil {
				logger.Error("failed to send SIGKILL", "error", kerr)
			}
			err = <-waitErr
		}
	}

	duration := time.Since(start)
	resp := execution.Succeeded(req.ID)
	switch {
	case timedOut:
		resp = execution.Failed(req.ID)
	case err != nil:
		resp = execution.Failed(req.ID)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn("shell command failed",
				"exit_code", exitErr.ExitCode(),
				"duration_ms", duration.Milliseconds(),
				"stderr", stderr.String(),
			)
		} else {
			logger.Error("wait for shell command", "error", err)
		}
	default:
		logger.Debug("shell command succeeded", "duration_ms", duration.Milliseconds())
	}

	sink <- resp
}

// cappedBuffer keeps the first limit bytes written to it and discards the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := c.limit - len(c.buf); room > 0 {
		if len(p) > room {
			c.buf = append(c.buf, p[:room]...)
		} else {
			c.buf = append(c.buf, p...)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}
