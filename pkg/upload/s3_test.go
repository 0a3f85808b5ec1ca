package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		baseName string
		want     string
	}{
		{
			name:     "default prefix",
			prefix:   "",
			baseName: "1769791126_8cec1fab",
			want:     "difftestoor/runs/1769791126_8cec1fab",
		},
		{
			name:     "custom prefix",
			prefix:   "my-project/compiler",
			baseName: "1769791126_8cec1fab",
			want:     "my-project/compiler/runs/1769791126_8cec1fab",
		},
		{
			name:     "surrounding slashes stripped",
			prefix:   "/my-prefix/",
			baseName: "run123",
			want:     "my-prefix/runs/run123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			assert.Equal(t, tt.want, u.resolvePrefix(tt.baseName))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{name: "json report", path: "run/report.json", wantPrefix: "application/json"},
		{name: "yaml report", path: "run/report.yaml", wantPrefix: "application/yaml"},
		{name: "markdown summary", path: "run/summary.md", wantPrefix: "text/markdown"},
		{name: "no extension", path: "run/Makefile", wantPrefix: "application/octet-stream"},
		{name: "txt file", path: "run/notes.txt", wantPrefix: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3UploadConfig{})
	require.Error(t, err)
}

// fakeS3 records the object requests it receives.
type fakeS3 struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)

	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func TestS3Uploader_AgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	u, err := NewS3Uploader(log, &config.S3UploadConfig{
		EndpointURL:     server.URL,
		Bucket:          "results",
		Prefix:          "ci",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)

	require.NoError(t, u.Preflight(context.Background()))

	runDir := filepath.Join(t.TempDir(), "1769791126_8cec1fab")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "report.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "summary.md"), []byte("# run"), 0o644))

	location, err := u.Upload(context.Background(), runDir)
	require.NoError(t, err)
	assert.Equal(t, "s3://results/ci/runs/1769791126_8cec1fab", location)

	fake.mu.Lock()
	requests := append([]string(nil), fake.requests...)
	fake.mu.Unlock()

	sort.Strings(requests)
	assert.Equal(t, []string{
		"DELETE /results/ci/.difftestoor-write-test",
		"PUT /results/ci/.difftestoor-write-test",
		"PUT /results/ci/runs/1769791126_8cec1fab/report.json",
		"PUT /results/ci/runs/1769791126_8cec1fab/summary.md",
	}, requests)
}
