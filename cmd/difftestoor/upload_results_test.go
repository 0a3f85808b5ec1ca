package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/report"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingS3 struct {
	mu       sync.Mutex
	requests []string
}

func (s *recordingS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)

	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *recordingS3) sorted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]string(nil), s.requests...)
	sort.Strings(out)

	return out
}

func setupUploadCommand(t *testing.T, endpoint string, runDirs ...string) *cobra.Command {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfgYAML := fmt.Sprintf(`results:
  dir: %s
  upload:
    s3:
      enabled: true
      endpoint_url: %s
      bucket: results
      prefix: ci
      access_key_id: key
      secret_access_key: secret
      force_path_style: true
`, t.TempDir(), endpoint)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	prevLog, prevCfg, prevDirs := log, cfgFiles, uploadRunDirs

	t.Cleanup(func() {
		log, cfgFiles, uploadRunDirs = prevLog, prevCfg, prevDirs
	})

	log = logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfgFiles = []string{cfgPath}
	uploadRunDirs = runDirs

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	return cmd
}

func writeRun(t *testing.T, runID string) string {
	t.Helper()

	r := &report.RunReport{RunID: runID, StartedAt: time.Unix(1769791126, 0).UTC()}

	runDir, err := report.WriteRunDir(t.TempDir(), r, []string{config.FormatJSON}, 0, nil)
	require.NoError(t, err)

	return runDir
}

func TestUploadResults_UploadsEveryRunDir(t *testing.T) {
	fake := &recordingS3{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	first := writeRun(t, "aaaa1111")
	second := writeRun(t, "bbbb2222")

	cmd := setupUploadCommand(t, server.URL, first, second)
	require.NoError(t, runUploadResults(cmd, nil))

	assert.Equal(t, []string{
		"DELETE /results/ci/.difftestoor-write-test",
		"PUT /results/ci/.difftestoor-write-test",
		"PUT /results/ci/runs/1769791126_aaaa1111/report.json",
		"PUT /results/ci/runs/1769791126_bbbb2222/report.json",
	}, fake.sorted())
}

func TestUploadResults_RejectsNonRunDirBeforeUploading(t *testing.T) {
	fake := &recordingS3{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cmd := setupUploadCommand(t, server.URL, writeRun(t, "aaaa1111"), t.TempDir())

	err := runUploadResults(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a run directory")
	assert.Empty(t, fake.sorted())
}

func TestUploadResults_RequiresS3Config(t *testing.T) {
	cmd := setupUploadCommand(t, "http://127.0.0.1:1", writeRun(t, "aaaa1111"))

	cfgPath := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("corpus:\n  dir: ./tests\n"), 0o644))
	cfgFiles = []string{cfgPath}

	err := runUploadResults(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
