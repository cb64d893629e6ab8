package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is the wall-clock limit applied when the config carries none.
const DefaultTimeout = 30 * time.Second

// envAllowlist is the only host environment carried into the child. Signing
// and encryption keys must never appear here.
var envAllowlist = []string{"PATH", "HOME", "TMPDIR", "LANG", "TZ"}

// Runner spawns one dedicated child process per script execution and decodes
// the JSON-over-stdout result protocol.
type Runner struct {
	binPath string
	logger  *slog.Logger
}

func NewRunner(binPath string, logger *slog.Logger) *Runner {
	return &Runner{binPath: binPath, logger: logger}
}

// Run executes the script in an isolated child process. The returned Result
// reports script-level success or failure; the error return is reserved for
// spawn failures on the host side.
//
// On timeout the child receives an unconditional kill signal and the result
// reports success=false with a "timed out" message, irrespective of whatever
// the child might still have written.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
		cfg.TimeoutMs = timeout.Milliseconds()
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal sandbox config: %w", err)
	}

	cmd := exec.Command(r.binPath, string(payload))
	cmd.Env = childEnv()

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	// stdout and stderr are captured independently so the JSON protocol is
	// never interleaved with diagnostics.
	var stdout, stderr []byte
	var pipes errgroup.Group
	pipes.Go(func() error {
		b, readErr := io.ReadAll(stdoutPipe)
		stdout = b
		return readErr
	})
	pipes.Go(func() error {
		b, readErr := io.ReadAll(stderrPipe)
		stderr = b
		return readErr
	})

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start sandbox process: %w", err)
	}
	r.logger.Debug("sandbox process started", "pid", cmd.Process.Pid, "timeout", timeout)

	done := make(chan error, 1)
	go func() {
		_ = pipes.Wait()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return nil, ctx.Err()

	case <-timer.C:
		_ = cmd.Process.Kill()
		<-done
		r.logger.Warn("sandbox process killed on timeout", "pid", cmd.Process.Pid, "timeout", timeout)
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("Script execution timed out after %d seconds", int(timeout.Seconds())),
		}, nil

	case waitErr := <-done:
		// Normal completion: stop the timer so no spurious kill fires later.
		timer.Stop()
		return r.decode(stdout, stderr, waitErr), nil
	}
}

// decode applies the IPC contract: exactly one JSON blob on stdout; if stdout
// is not valid JSON, exit code 0 means success with the raw output and a
// non-zero exit means failure with stderr or a generic message.
func (r *Runner) decode(stdout, stderr []byte, waitErr error) *Result {
	if res, ok := ParseResult(stdout); ok {
		return res
	}

	if waitErr == nil {
		return &Result{Success: true, Result: strings.TrimSpace(string(stdout))}
	}

	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = "Script process exited with an error"
	}
	return &Result{Success: false, Error: msg}
}

func childEnv() []string {
	env := make([]string, 0, len(envAllowlist))
	for _, key := range envAllowlist {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	return env
}
