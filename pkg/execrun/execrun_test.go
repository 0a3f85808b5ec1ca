package execrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProgram(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))

	return path
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test programs require a POSIX shell")
	}

	dir := t.TempDir()

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "success with output",
			body:       "printf '3\\n'\nexit 0\n",
			wantCode:   0,
			wantStdout: "3\n",
		},
		{
			name:     "non-zero exit is a normal result",
			body:     "exit 7\n",
			wantCode: 7,
		},
		{
			name:       "stderr captured separately",
			body:       "echo out\necho err >&2\n",
			wantStdout: "out\n",
			wantStderr: "err\n",
		},
		{
			name:     "stdin is empty",
			body:     "if read line; then exit 1; fi\nexit 0\n",
			wantCode: 0,
		},
		{
			name:     "crash by signal reports negative signal number",
			body:     "kill -9 $$\n",
			wantCode: -9,
		},
		{
			name:       "no arguments are passed",
			body:       "echo $#\n",
			wantStdout: "0\n",
		},
	}

	r := NewRunner(quietLogger(), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProgram(t, dir, filepath.Base(t.Name()), tt.body)

			result, err := r.Run(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, result.ExitCode)
			assert.Equal(t, tt.wantStdout, string(result.Stdout))
			assert.Equal(t, tt.wantStderr, string(result.Stderr))
			assert.False(t, result.TimedOut)
		})
	}
}

func TestRun_LaunchFailures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	dir := t.TempDir()

	notExecutable := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(notExecutable, []byte("data"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing")},
		{name: "not executable", path: notExecutable},
	}

	r := NewRunner(quietLogger(), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Run(context.Background(), tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLaunch))
			assert.Nil(t, result)
		})
	}
}

func TestRun_RelativePathIsNotResolvedThroughPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test programs require a POSIX shell")
	}

	dir := t.TempDir()
	writeProgram(t, dir, "prog", "echo local\n")
	t.Chdir(dir)

	result, err := NewRunner(quietLogger(), nil).Run(context.Background(), "prog")
	require.NoError(t, err)
	assert.Equal(t, "local\n", string(result.Stdout))
}

func TestRun_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test programs require a POSIX shell")
	}

	tests := []struct {
		name string
		body string
	}{
		{name: "single process", body: "exec sleep 10\n"},
		{name: "forked child holds stdout", body: "echo started\nsleep 10\necho late\n"},
		{name: "background child", body: "sleep 10 &\nwait\n"},
	}

	dir := t.TempDir()
	r := NewRunner(quietLogger(), &Config{Timeout: 100 * time.Millisecond})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProgram(t, dir, filepath.Base(t.Name()), tt.body)

			start := time.Now()
			result, err := r.Run(context.Background(), path)
			require.NoError(t, err)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.True(t, result.TimedOut)
			assert.Equal(t, -1, result.ExitCode)
			assert.NotContains(t, string(result.Stdout), "late")
		})
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test programs require a POSIX shell")
	}

	path := writeProgram(t, t.TempDir(), "hang", "exec sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	result, err := NewRunner(quietLogger(), nil).Run(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}
