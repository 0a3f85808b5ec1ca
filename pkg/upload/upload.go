package upload

import "context"

// Uploader publishes a local run directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable
	// by writing and removing a small marker object.
	Preflight(ctx context.Context) error

	// Upload uploads every file in runDir. The directory basename becomes
	// the run's key under the configured prefix. It returns the remote
	// location of the run.
	Upload(ctx context.Context, runDir string) (string, error)
}
