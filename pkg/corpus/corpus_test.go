package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ethpandaops/difftestoor/pkg/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createFiles(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("int main(void) { return 0; }\n"), 0o644))
	}
}

func names(cases []TestCase) []string {
	out := make([]string, 0, len(cases))
	for _, tc := range cases {
		out = append(out, tc.Name)
	}

	sort.Strings(out)

	return out
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		dirs   []string
		suffix string
		filter string
		want   []string
	}{
		{
			name:   "matches suffix only",
			files:  []string{"add.c", "div.c", "notes.txt", "add_reference"},
			suffix: ".c",
			want:   []string{"add.c", "div.c"},
		},
		{
			name:   "skips directories ending with suffix",
			files:  []string{"add.c"},
			dirs:   []string{"weird.c"},
			suffix: ".c",
			want:   []string{"add.c"},
		},
		{
			name:   "does not recurse",
			files:  []string{"add.c", "nested/sub.c"},
			suffix: ".c",
			want:   []string{"add.c"},
		},
		{
			name:   "filter keeps matching names",
			files:  []string{"add.c", "div.c", "div_zero.c"},
			suffix: ".c",
			filter: "div",
			want:   []string{"div.c", "div_zero.c"},
		},
		{
			name:   "empty directory",
			suffix: ".c",
			want:   []string{},
		},
		{
			name:   "custom suffix",
			files:  []string{"a.c", "b.src"},
			suffix: ".src",
			want:   []string{"b.src"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			createFiles(t, dir, tt.files...)

			for _, d := range tt.dirs {
				require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
			}

			cases, err := Discover(dir, tt.suffix, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(cases))

			for i, tc := range cases {
				assert.Equal(t, i, tc.Index)
				assert.Equal(t, filepath.Join(dir, tc.Name), tc.Path)
			}
		})
	}
}

func TestDiscover_BaseNameAndArtifacts(t *testing.T) {
	dir := t.TempDir()
	createFiles(t, dir, "add.c")

	cases, err := Discover(dir, ".c", "")
	require.NoError(t, err)
	require.Len(t, cases, 1)

	tc := cases[0]
	assert.Equal(t, "add", tc.BaseName)
	assert.Equal(t, toolchain.ArtifactName("add", toolchain.TagReference), tc.ArtifactName(toolchain.TagReference))
	assert.NotEqual(t, tc.ArtifactName(toolchain.TagReference), tc.ArtifactName(toolchain.TagCandidate))
}

func TestDiscover_Idempotent(t *testing.T) {
	dir := t.TempDir()
	createFiles(t, dir, "a.c", "b.c", "c.c")

	first, err := Discover(dir, ".c", "")
	require.NoError(t, err)

	second, err := Discover(dir, ".c", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDiscover_Errors(t *testing.T) {
	dir := t.TempDir()
	createFiles(t, dir, "file.c")

	tests := []struct {
		name string
		path string
	}{
		{name: "missing directory", path: filepath.Join(dir, "missing")},
		{name: "not a directory", path: filepath.Join(dir, "file.c")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases, err := Discover(tt.path, ".c", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDiscovery))
			assert.Nil(t, cases)
		})
	}
}
