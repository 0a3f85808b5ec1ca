package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactName(t *testing.T) {
	want := "add_reference"
	if runtime.GOOS == "windows" {
		want += ".exe"
	}

	assert.Equal(t, want, ArtifactName("add", TagReference))
	assert.NotEqual(t, ArtifactName("add", TagReference), ArtifactName("add", TagCandidate))
}

func TestIsArtifactName(t *testing.T) {
	tests := []struct {
		name string
		file string
		want bool
	}{
		{name: "reference artifact", file: "add_reference", want: true},
		{name: "candidate artifact", file: "div_candidate", want: true},
		{name: "windows artifact", file: "div_candidate.exe", want: true},
		{name: "source file", file: "add.c", want: false},
		{name: "source named like a tag", file: "x_candidate.c", want: false},
		{name: "bare suffix", file: "_reference", want: false},
		{name: "other binary", file: "add_clang", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsArtifactName(tt.file, Tags...))
		})
	}
}

func TestNewSpec(t *testing.T) {
	cfg := &config.ToolchainConfig{
		Command: []string{"cc", "{source}", "-o", "{output}"},
		Env:     []string{"A=1"},
	}

	spec := NewSpec(TagCandidate, cfg, time.Second)
	assert.Equal(t, "candidate", spec.Label)
	assert.Equal(t, time.Second, spec.Timeout)

	// NewSpec must not alias the config slices.
	cfg.Command[0] = "changed"
	assert.Equal(t, "cc", spec.Command[0])
}

func TestSpecArgs(t *testing.T) {
	spec := &Spec{Command: []string{"cc", "{source}", "-o", "{output}", "-DOUT={output}"}}

	assert.Equal(t,
		[]string{"cc", "/src/a.c", "-o", "/out/a_reference", "-DOUT=/out/a_reference"},
		spec.Args("/src/a.c", "/out/a_reference"),
	)

	if runtime.GOOS == "windows" {
		return
	}

	shell := &Spec{Shell: true, Command: []string{"cc {source}", "-o {output}"}}
	assert.Equal(t, []string{"cc '/src/it'\\''s.c' -o '/out/a'"}, shell.Args("/src/it's.c", "/out/a"))
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))

	return path
}

func TestDriverCompile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("build scripts require a POSIX shell")
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	dir := t.TempDir()
	source := filepath.Join(dir, "prog.c")
	require.NoError(t, os.WriteFile(source, []byte("int main(){}"), 0o644))

	copier := writeScript(t, dir, "copycc", "cp \"$1\" \"$2\"\necho built\n")
	failing := writeScript(t, dir, "badcc", "echo 'error: expected ;' >&2\nexit 3\n")
	slow := writeScript(t, dir, "slowcc", "sleep 5\ncp \"$1\" \"$2\"\n")

	d := NewDriver(log)

	t.Run("success", func(t *testing.T) {
		output := filepath.Join(dir, "prog_reference")
		spec := &Spec{Tag: TagReference, Label: "copy", Command: []string{copier, "{source}", "{output}"}}

		result := d.Compile(context.Background(), spec, source, output)
		assert.True(t, result.Built)
		assert.Equal(t, output, result.ArtifactPath)
		assert.Equal(t, TagReference, result.Tag)
		assert.Equal(t, "built\n", result.Diagnostics)
		assert.FileExists(t, output)
	})

	t.Run("non-zero exit is a failed build", func(t *testing.T) {
		spec := &Spec{Tag: TagCandidate, Command: []string{failing, "{source}", "{output}"}}

		result := d.Compile(context.Background(), spec, source, filepath.Join(dir, "prog_candidate"))
		assert.False(t, result.Built)
		assert.Empty(t, result.ArtifactPath)
		assert.Equal(t, 3, result.ExitCode)
		assert.Contains(t, result.Diagnostics, "expected ;")
		assert.Equal(t, TagCandidate, result.Tag)
	})

	t.Run("missing build command is a failed build", func(t *testing.T) {
		spec := &Spec{Tag: TagCandidate, Command: []string{filepath.Join(dir, "nope"), "{source}", "{output}"}}

		result := d.Compile(context.Background(), spec, source, filepath.Join(dir, "prog_candidate"))
		assert.False(t, result.Built)
		assert.Equal(t, -1, result.ExitCode)
		assert.Contains(t, result.Diagnostics, "failed to run build command")
	})

	t.Run("shell mode with working directory and env", func(t *testing.T) {
		workDir := t.TempDir()
		output := filepath.Join(dir, "shell_reference")
		spec := &Spec{
			Tag:     TagReference,
			Shell:   true,
			Dir:     workDir,
			Env:     []string{"GREETING=hello"},
			Command: []string{"cp {source} {output} && echo $GREETING && pwd"},
		}

		result := d.Compile(context.Background(), spec, source, output)
		require.True(t, result.Built, result.Diagnostics)
		assert.Contains(t, result.Diagnostics, "hello")
		assert.Contains(t, result.Diagnostics, filepath.Base(workDir))
	})

	t.Run("build timeout kills the whole build", func(t *testing.T) {
		timeoutTests := []struct {
			name string
			spec *Spec
		}{
			{
				name: "script forking a child",
				spec: &Spec{Command: []string{slow, "{source}", "{output}"}},
			},
			{
				name: "shell mode",
				spec: &Spec{Shell: true, Command: []string{"sleep 5; cp {source} {output}"}},
			},
		}

		for _, tt := range timeoutTests {
			t.Run(tt.name, func(t *testing.T) {
				tt.spec.Tag = TagCandidate
				tt.spec.Timeout = 100 * time.Millisecond
				output := filepath.Join(dir, "slow_candidate")

				start := time.Now()
				result := d.Compile(context.Background(), tt.spec, source, output)
				assert.Less(t, time.Since(start), 2*time.Second)
				assert.False(t, result.Built)
				assert.True(t, result.TimedOut)
				assert.Equal(t, -1, result.ExitCode)
				assert.NoFileExists(t, output)
			})
		}
	})
}
