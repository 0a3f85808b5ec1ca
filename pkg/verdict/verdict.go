package verdict

import (
	"fmt"

	"github.com/ethpandaops/difftestoor/pkg/execrun"
	"github.com/ethpandaops/difftestoor/pkg/toolchain"
)

// Kind classifies the outcome of a test case.
type Kind string

const (
	KindPass             Kind = "pass"
	KindBuildFailed      Kind = "build_failed"
	KindExitCodeMismatch Kind = "exit_code_mismatch"
	KindOutputMismatch   Kind = "output_mismatch"
	KindLaunchFailed     Kind = "launch_failed"
	KindTimeout          Kind = "timeout"
	KindError            Kind = "error"
)

// Stage is the phase of a case a timeout happened in.
type Stage string

const (
	StageBuild Stage = "build"
	StageRun   Stage = "run"
)

// Verdict is the single outcome of a test case. Only the fields relevant to
// the Kind are set.
type Verdict struct {
	Kind      Kind          `json:"kind" yaml:"kind"`
	Toolchain toolchain.Tag `json:"toolchain,omitempty" yaml:"toolchain,omitempty"`
	Stage     Stage         `json:"stage,omitempty" yaml:"stage,omitempty"`
	Expected  *int          `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual    *int          `json:"actual,omitempty" yaml:"actual,omitempty"`
	Offset    *int          `json:"offset,omitempty" yaml:"offset,omitempty"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
}

// Pass returns a passing verdict.
func Pass() Verdict {
	return Verdict{Kind: KindPass}
}

// BuildFailed returns a verdict for a failed build.
func BuildFailed(tag toolchain.Tag) Verdict {
	return Verdict{Kind: KindBuildFailed, Toolchain: tag}
}

// ExitCodeMismatch returns a verdict for differing exit codes.
func ExitCodeMismatch(expected, actual int) Verdict {
	return Verdict{Kind: KindExitCodeMismatch, Expected: &expected, Actual: &actual}
}

// OutputMismatch returns a verdict for differing stdout, with the offset of
// the first differing byte.
func OutputMismatch(offset int) Verdict {
	return Verdict{Kind: KindOutputMismatch, Offset: &offset}
}

// LaunchFailed returns a verdict for an artifact that could not be started.
func LaunchFailed(tag toolchain.Tag, msg string) Verdict {
	return Verdict{Kind: KindLaunchFailed, Toolchain: tag, Message: msg}
}

// Timeout returns a verdict for a build or run that exceeded its deadline.
func Timeout(tag toolchain.Tag, stage Stage) Verdict {
	return Verdict{Kind: KindTimeout, Toolchain: tag, Stage: stage}
}

// Errored returns a verdict for an unexpected failure while processing a case.
func Errored(msg string) Verdict {
	return Verdict{Kind: KindError, Message: msg}
}

// Passed reports whether the verdict is a pass.
func (v Verdict) Passed() bool {
	return v.Kind == KindPass
}

// String returns the human readable failure reason.
func (v Verdict) String() string {
	switch v.Kind {
	case KindPass:
		return "passed"
	case KindBuildFailed:
		return fmt.Sprintf("build failed with %s toolchain", v.Toolchain)
	case KindExitCodeMismatch:
		return fmt.Sprintf("return codes do not match (expected %d, got %d)", deref(v.Expected), deref(v.Actual))
	case KindOutputMismatch:
		return fmt.Sprintf("outputs do not match (first difference at byte %d)", deref(v.Offset))
	case KindLaunchFailed:
		if v.Message == "" {
			return fmt.Sprintf("failed to launch %s program", v.Toolchain)
		}

		return fmt.Sprintf("failed to launch %s program: %s", v.Toolchain, v.Message)
	case KindTimeout:
		return fmt.Sprintf("%s %s timed out", v.Toolchain, v.Stage)
	case KindError:
		return fmt.Sprintf("error: %s", v.Message)
	default:
		return string(v.Kind)
	}
}

// Compare decides the verdict for two completed executions. Exit codes are
// compared first; stdout is only compared when they agree. Stderr is never
// inspected.
func Compare(reference, candidate *execrun.Result) Verdict {
	if reference.ExitCode != candidate.ExitCode {
		return ExitCodeMismatch(reference.ExitCode, candidate.ExitCode)
	}

	if offset := firstDifference(reference.Stdout, candidate.Stdout); offset >= 0 {
		return OutputMismatch(offset)
	}

	return Pass()
}

// firstDifference returns the index of the first differing byte, the length
// of the shorter input if one is a prefix of the other, or -1 when equal.
func firstDifference(a, b []byte) int {
	n := min(len(a), len(b))

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}

	if len(a) != len(b) {
		return n
	}

	return -1
}

func deref(v *int) int {
	if v == nil {
		return 0
	}

	return *v
}
