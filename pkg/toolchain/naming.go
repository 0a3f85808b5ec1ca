package toolchain

import (
	"runtime"
	"strings"
)

const exeSuffix = ".exe"

// ArtifactName returns the binary name for a source base name built by the
// toolchain with the given tag: <basename>_<tag>, plus .exe on Windows.
func ArtifactName(baseName string, tag Tag) string {
	name := baseName + "_" + string(tag)
	if runtime.GOOS == "windows" {
		name += exeSuffix
	}

	return name
}

// IsArtifactName reports whether name follows the artifact naming
// convention for any of the given tags.
func IsArtifactName(name string, tags ...Tag) bool {
	trimmed := strings.TrimSuffix(name, exeSuffix)

	for _, tag := range tags {
		suffix := "_" + string(tag)
		if len(trimmed) > len(suffix) && strings.HasSuffix(trimmed, suffix) {
			return true
		}
	}

	return false
}
