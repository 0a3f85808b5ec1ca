package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/difftestoor/pkg/toolchain"
)

// ErrDiscovery is returned when the corpus directory cannot be scanned.
var ErrDiscovery = errors.New("test case discovery failed")

// TestCase is one source file of the corpus.
type TestCase struct {
	Index    int    `json:"index" yaml:"index"`
	Name     string `json:"name" yaml:"name"`           // File name relative to the corpus dir (e.g., "add.c")
	Path     string `json:"path" yaml:"path"`           // Full path to the source file
	BaseName string `json:"base_name" yaml:"base_name"` // Name without extension (e.g., "add")
}

// ArtifactName returns the binary name produced for this case by the
// toolchain with the given tag.
func (tc *TestCase) ArtifactName(tag toolchain.Tag) string {
	return toolchain.ArtifactName(tc.BaseName, tag)
}

// Discover returns one TestCase per regular entry of dir whose name ends
// with suffix, in directory listing order. A non-empty filter keeps only
// names containing it.
func Discover(dir, suffix, filter string) ([]TestCase, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrDiscovery, dir)
	}

	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	defer func() { _ = f.Close() }()

	// File.ReadDir keeps the order the directory returned entries in.
	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %w", ErrDiscovery, dir, err)
	}

	cases := make([]TestCase, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()

		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}

		if filter != "" && !strings.Contains(name, filter) {
			continue
		}

		cases = append(cases, TestCase{
			Index:    len(cases),
			Name:     name,
			Path:     filepath.Join(dir, name),
			BaseName: strings.TrimSuffix(name, filepath.Ext(name)),
		})
	}

	return cases, nil
}
