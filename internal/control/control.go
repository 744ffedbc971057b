// Package control isolates the operator surface — status display, hardware
// button events, and the restart capability — behind narrow interfaces so
// the sync engine contains no direct hardware or OS side effects.
//
// The SPI LCD renderer and GPIO interrupt driver live outside this module
// and implement Surface; Console is the headless stand-in.
package control

import (
	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/logging"
)

// Display states shown to the operator.
const (
	StateIdle     = "IDLE"
	StateScan     = "SCANNING"
	StateDownload = "DOWNLOAD"
	StateUpload   = "UPLOAD"
	StateDone     = "DONE"
	StateError    = "ERROR"
	StateReboot   = "REBOOT"
)

// NoProgress hides the progress bar.
const NoProgress = -1.0

// Surface is the display and event interface consumed by the sync engine.
//
// UpdateStatus shows a state, a short detail line, and an optional progress
// fraction in [0,1]; pass NoProgress to hide the bar. The event callbacks
// are invoked asynchronously from the hardware layer's interrupt context.
type Surface interface {
	UpdateStatus(state, detail string, progress float64)
	Clear()
	OnSyncRequested(fn func())
	OnRebootRequested(fn func())
}

// Restarter issues an OS-level restart. It bypasses the sync cycle entirely
// and does not wait for a running cycle to finish.
type Restarter interface {
	Restart() error
}

// Console is a Surface that logs status changes. It is used headless and in
// tests; its callbacks can be fired manually via Press methods.
type Console struct {
	syncFn   func()
	rebootFn func()
}

// NewConsole creates a console surface.
func NewConsole() *Console {
	return &Console{}
}

// UpdateStatus implements Surface.
func (c *Console) UpdateStatus(state, detail string, progress float64) {
	fields := []zap.Field{zap.String("state", state), zap.String("detail", detail)}
	if progress >= 0 {
		fields = append(fields, zap.Float64("progress", progress))
	}
	logging.Info("status", fields...)
}

// Clear implements Surface.
func (c *Console) Clear() {}

// OnSyncRequested implements Surface.
func (c *Console) OnSyncRequested(fn func()) { c.syncFn = fn }

// OnRebootRequested implements Surface.
func (c *Console) OnRebootRequested(fn func()) { c.rebootFn = fn }

// PressSync fires the manual-sync callback, standing in for the button edge.
func (c *Console) PressSync() {
	if c.syncFn != nil {
		c.syncFn()
	}
}

// PressReboot fires the reboot callback.
func (c *Console) PressReboot() {
	if c.rebootFn != nil {
		c.rebootFn()
	}
}
