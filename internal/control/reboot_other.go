//go:build !linux

package control

import (
	"fmt"
	"time"
)

// SystemRestarter is a development stub on non-Linux hosts.
type SystemRestarter struct {
	Delay time.Duration
}

// Restart implements Restarter.
func (r SystemRestarter) Restart() error {
	return fmt.Errorf("reboot not supported on this platform")
}
