//go:build linux

package control

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/shayo/flysto-sync/internal/logging"
)

// SystemRestarter reboots the device through the kernel. Delay leaves time
// for a final display update before the radio and SPI bus go away.
type SystemRestarter struct {
	Delay time.Duration
}

// Restart implements Restarter.
func (r SystemRestarter) Restart() error {
	logging.Info("rebooting device")
	_ = logging.Sync()
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
