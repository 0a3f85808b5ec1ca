package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/ethpandaops/difftestoor/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// File names inside a run directory.
const (
	JSONFileName     = "report.json"
	YAMLFileName     = "report.yaml"
	MarkdownFileName = "summary.md"
)

// RunDirName returns the directory name used for a run's result files.
func RunDirName(r *RunReport) string {
	return fmt.Sprintf("%d_%s", r.StartedAt.Unix(), r.RunID)
}

// WriteRunDir writes the requested formats of r into a new run directory
// under resultsDir and returns its path.
func WriteRunDir(
	resultsDir string,
	r *RunReport,
	formats []string,
	maxChars int,
	owner *fsutil.OwnerConfig,
) (string, error) {
	runDir := filepath.Join(resultsDir, RunDirName(r))

	if err := fsutil.MkdirAll(runDir, 0o755, owner); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	for _, format := range formats {
		var (
			name string
			data []byte
			err  error
		)

		switch format {
		case config.FormatJSON:
			name = JSONFileName
			data, err = json.MarshalIndent(r, "", "  ")
		case config.FormatYAML:
			name = YAMLFileName
			data, err = yaml.Marshal(r)
		case config.FormatMarkdown:
			name = MarkdownFileName
			data = []byte(GenerateMarkdown(r, maxChars))
		default:
			return "", fmt.Errorf("unsupported report format %q", format)
		}

		if err != nil {
			return "", fmt.Errorf("encoding %s report: %w", format, err)
		}

		if err := fsutil.WriteFile(filepath.Join(runDir, name), data, 0o644, owner); err != nil {
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
	}

	return runDir, nil
}

// ReadReport reads a RunReport from a report.json file or from a run
// directory containing one.
func ReadReport(path string) (*RunReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	if info.IsDir() {
		path = filepath.Join(path, JSONFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	return &r, nil
}
