package janitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/difftestoor/pkg/toolchain"
	"github.com/sirupsen/logrus"
)

// List returns the paths of every regular entry in dir whose name follows
// the artifact naming convention for any of the given tags. A missing
// directory yields no entries.
func List(dir string, tags []toolchain.Tag) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing artifact directory: %w", err)
	}

	var paths []string

	for _, entry := range entries {
		if entry.IsDir() || !toolchain.IsArtifactName(entry.Name(), tags...) {
			continue
		}

		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	return paths, nil
}

// Cleanup removes every artifact in dir produced for the given tags. It
// keeps going past individual failures and returns the removed paths along
// with the joined removal errors.
func Cleanup(log logrus.FieldLogger, dir string, tags []toolchain.Tag) ([]string, error) {
	log = log.WithField("component", "janitor")

	paths, err := List(dir, tags)
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(paths))

	var errs []error

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", path).Warn("Failed to remove artifact")
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))

			continue
		}

		removed = append(removed, path)
	}

	if len(removed) > 0 {
		log.WithFields(logrus.Fields{
			"dir":     dir,
			"removed": len(removed),
		}).Debug("Removed artifacts")
	}

	return removed, errors.Join(errs...)
}
