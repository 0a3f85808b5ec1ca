package toolchain

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/procgroup"
)

// Tag identifies which side of the comparison a toolchain builds for.
type Tag string

const (
	TagReference Tag = "reference"
	TagCandidate Tag = "candidate"
)

// Tags lists both toolchain tags in processing order.
var Tags = []Tag{TagReference, TagCandidate}

// Spec describes how one toolchain turns a source file into an executable.
type Spec struct {
	Tag     Tag
	Label   string
	Command []string
	Shell   bool
	Dir     string
	Env     []string
	Timeout time.Duration
}

// NewSpec builds a Spec from toolchain configuration.
func NewSpec(tag Tag, cfg *config.ToolchainConfig, timeout time.Duration) *Spec {
	label := cfg.Label
	if label == "" {
		label = string(tag)
	}

	return &Spec{
		Tag:     tag,
		Label:   label,
		Command: append([]string(nil), cfg.Command...),
		Shell:   cfg.Shell,
		Dir:     cfg.Dir,
		Env:     append([]string(nil), cfg.Env...),
		Timeout: timeout,
	}
}

// Args returns the command template with source and output substituted.
// In shell mode paths are quoted and the template is joined into one line.
func (s *Spec) Args(source, output string) []string {
	if s.Shell {
		source, output = shellQuote(source), shellQuote(output)
	}

	replacer := strings.NewReplacer(
		config.SourcePlaceholder, source,
		config.OutputPlaceholder, output,
	)

	args := make([]string, 0, len(s.Command))
	for _, arg := range s.Command {
		args = append(args, replacer.Replace(arg))
	}

	if s.Shell {
		return []string{strings.Join(args, " ")}
	}

	return args
}

// command creates the child process for building source into output.
func (s *Spec) command(ctx context.Context, source, output string) *exec.Cmd {
	args := s.Args(source, output)

	var cmd *exec.Cmd

	switch {
	case s.Shell && runtime.GOOS == "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/C", args[0])
	case s.Shell:
		cmd = exec.CommandContext(ctx, "sh", "-c", args[0])
	default:
		cmd = exec.CommandContext(ctx, args[0], args[1:]...)
	}

	cmd.Dir = s.Dir

	procgroup.Configure(cmd)

	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	return cmd
}

func shellQuote(s string) string {
	if runtime.GOOS == "windows" {
		return `"` + s + `"`
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
