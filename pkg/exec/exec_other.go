//go:build !unix

package exec

import "os/exec"

// killProcessGroup keeps the default kill of the direct child.
func killProcessGroup(cmd *exec.Cmd) {}
