package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// BuildResult is the outcome of one compilation attempt. A failed build is
// an ordinary result with Built unset, never an error.
type BuildResult struct {
	Tag          Tag           `json:"toolchain" yaml:"toolchain"`
	Source       string        `json:"source" yaml:"source"`
	Built        bool          `json:"built" yaml:"built"`
	ArtifactPath string        `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`
	ExitCode     int           `json:"exit_code" yaml:"exit_code"`
	Diagnostics  string        `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Duration     time.Duration `json:"duration_ns" yaml:"duration"`
	TimedOut     bool          `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
}

// Driver invokes a toolchain's build command for a single source file.
type Driver interface {
	// Compile builds sourcePath into outputPath. The artifact path is only
	// reported when the build command exits successfully.
	Compile(ctx context.Context, spec *Spec, sourcePath, outputPath string) *BuildResult
}

// NewDriver creates a new compilation driver.
func NewDriver(log logrus.FieldLogger) Driver {
	return &driver{
		log: log.WithField("component", "compiler"),
	}
}

type driver struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Driver = (*driver)(nil)

// Compile runs the build command and captures its combined output.
func (d *driver) Compile(ctx context.Context, spec *Spec, sourcePath, outputPath string) *BuildResult {
	result := &BuildResult{
		Tag:    spec.Tag,
		Source: sourcePath,
	}

	buildCtx := ctx

	if spec.Timeout > 0 {
		var cancel context.CancelFunc

		buildCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := spec.command(buildCtx, sourcePath, outputPath)

	var out bytes.Buffer

	cmd.Stdout = &out
	cmd.Stderr = &out

	log := d.log.WithFields(logrus.Fields{
		"toolchain": spec.Label,
		"source":    sourcePath,
	})
	log.WithField("args", cmd.Args).Debug("Running build command")

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Diagnostics = out.String()

	if err == nil {
		result.Built = true
		result.ArtifactPath = outputPath

		return result
	}

	var exitErr *exec.ExitError

	switch {
	case spec.Timeout > 0 && ctx.Err() == nil &&
		errors.Is(buildCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		result.Diagnostics += fmt.Sprintf("failed to run build command: %v\n", err)
	}

	log.WithFields(logrus.Fields{
		"exit_code": result.ExitCode,
		"timed_out": result.TimedOut,
	}).Debug("Build command failed")

	return result
}
