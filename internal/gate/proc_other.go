//go:build !unix

package gate

import "os/exec"

// killProcessGroup is a no-op where process groups are unavailable; cancellation
// falls back to killing the direct child.
func killProcessGroup(*exec.Cmd) {}
