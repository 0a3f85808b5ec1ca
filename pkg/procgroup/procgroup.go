package procgroup

import (
	"os/exec"
	"time"
)

// WaitDelay bounds how long Wait keeps draining output pipes once the
// command was cancelled or exited.
const WaitDelay = 5 * time.Second

// Configure starts cmd in its own process group and makes context
// cancellation kill the whole group, so compiler subprocesses and programs
// that fork cannot outlive a timeout or keep the output pipes open.
// It must be called before cmd is started.
func Configure(cmd *exec.Cmd) {
	cmd.WaitDelay = WaitDelay

	setGroup(cmd)
}
