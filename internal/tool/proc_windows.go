//go:build !unix

package tool

import "os/exec"

// configureProcessGroup is a no-op where process groups are not
// available; cancellation falls back to killing the direct child.
func configureProcessGroup(cmd *exec.Cmd) {}
