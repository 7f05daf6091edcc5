//go:build !unix

package transcribe

import (
	"os"
	"os/exec"
)

func startGroup(cmd *exec.Cmd) {}

func signalGroup(cmd *exec.Cmd, sig os.Signal) error {
	return cmd.Process.Signal(sig)
}
