package execrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/procgroup"
	"github.com/sirupsen/logrus"
)

// ErrLaunch is returned when an artifact could not be started at all.
var ErrLaunch = errors.New("failed to launch program")

// Result holds the observable behaviour of one program execution.
type Result struct {
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Stdout   Output        `json:"stdout" yaml:"stdout"`
	Stderr   Output        `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
	TimedOut bool          `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
}

// Config configures program execution.
type Config struct {
	// Timeout bounds a single execution. Zero disables the deadline.
	Timeout time.Duration
	// Dir is the working directory of executed programs.
	Dir string
}

// Runner executes compiled artifacts.
type Runner interface {
	// Run executes the artifact with no arguments and no stdin and waits for
	// it to terminate. A non-zero exit or a crash is a normal Result.
	Run(ctx context.Context, artifactPath string) (*Result, error)
}

// NewRunner creates a new program runner.
func NewRunner(log logrus.FieldLogger, cfg *Config) Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	return &runner{
		log: log.WithField("component", "execrun"),
		cfg: cfg,
	}
}

type runner struct {
	log logrus.FieldLogger
	cfg *Config
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Run executes a single artifact.
func (r *runner) Run(ctx context.Context, artifactPath string) (*Result, error) {
	// A bare name would be resolved through PATH.
	path, err := filepath.Abs(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %q: %w", ErrLaunch, artifactPath, err)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	runCtx := ctx

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, path)
	cmd.Dir = r.cfg.Dir
	// A nil Stdin reads from the null device.
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	procgroup.Configure(cmd)

	r.log.WithField("program", path).Debug("Executing program")

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	waitErr := cmd.Wait()

	result := &Result{
		ExitCode: 0,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if r.cfg.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1

		return result, nil
	}

	if waitErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("waiting for %q: %w", path, waitErr)
	}

	result.ExitCode = exitCode(exitErr)

	return result, nil
}

// exitCode returns the process exit status, or the negated signal number
// when the process was terminated by a signal.
func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -int(status.Signal())
	}

	return exitErr.ExitCode()
}
