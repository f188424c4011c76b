//go:build unix

package decoder

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the decoder in its own process group so helpers it
// spawns (mpv runs yt-dlp) are killed along with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(cmd *exec.Cmd) error {
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return cmd.Process.Kill()
}
