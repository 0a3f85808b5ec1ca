//go:build !unix

package procgroup

import "os/exec"

// setGroup keeps the default cancellation, which kills the direct child only.
func setGroup(_ *exec.Cmd) {}
