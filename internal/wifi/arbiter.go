// Package wifi arbitrates the device's single Wi-Fi radio.
//
// The radio can hold at most one association, so the arbiter switches
// destructively between the FlashAir card's network and whatever
// internet-capable network is in range. All radio control goes through
// NetworkManager's nmcli; the command runner is injected so the state
// machine is testable without hardware.
package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/config"
	"github.com/shayo/flysto-sync/internal/logging"
	"github.com/shayo/flysto-sync/internal/metrics"
)

// Autoconnect priorities assigned after a successful association. Internet
// networks win so that, when both are in range between cycles, the device
// keeps its upload path rather than re-latching onto the card.
const (
	priorityInternet  = 100
	priorityLogSource = 10
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Arbiter scans for and force-associates to one named network at a time.
type Arbiter struct {
	runner         Runner
	connectTimeout time.Duration
	settleDelay    time.Duration
	sleep          func(time.Duration)
}

// Config holds arbiter configuration.
type Config struct {
	Runner         Runner        // defaults to ExecRunner
	ConnectTimeout time.Duration // bound on a single connect attempt
	SettleDelay    time.Duration // pause after cycling the radio
}

// New creates an Arbiter.
func New(cfg Config) *Arbiter {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	return &Arbiter{
		runner:         cfg.Runner,
		connectTimeout: cfg.ConnectTimeout,
		settleDelay:    cfg.SettleDelay,
		sleep:          time.Sleep,
	}
}

// Scan returns the SSIDs currently visible to the radio. A driver failure or
// timeout yields an empty result, never an error: the caller's next scheduled
// cycle is the retry.
func (a *Arbiter) Scan(ctx context.Context) []string {
	out, err := a.runner.Run(ctx, "nmcli", "-t", "-f", "SSID", "dev", "wifi", "list", "--rescan", "yes")
	if err != nil {
		logging.Warn("wifi scan failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]bool)
	var ssids []string
	for _, line := range strings.Split(out, "\n") {
		ssid := strings.TrimSpace(line)
		if ssid == "" || seen[ssid] {
			continue
		}
		seen[ssid] = true
		ssids = append(ssids, ssid)
	}
	logging.Debug("wifi scan complete", zap.Int("networks", len(ssids)))
	return ssids
}

// ForceConnect destructively reassociates the radio to ssid: any saved
// profile of that name is deleted, the radio is cycled, and a fresh connect
// is attempted with a bounded timeout. On success the saved profile gets a
// persistent autoconnect priority — high when the network is internet-role,
// low for the log source. There is no retry inside this call.
func (a *Arbiter) ForceConnect(ctx context.Context, ssid, password string, internet bool) error {
	err := a.forceConnect(ctx, ssid, password, internet)
	metrics.RecordWifiConnect(err == nil)
	if err != nil {
		logging.Warn("wifi connect failed", zap.String("ssid", ssid), zap.Error(err))
	} else {
		logging.Info("wifi connected", zap.String("ssid", ssid), zap.Bool("internet", internet))
	}
	return err
}

func (a *Arbiter) forceConnect(ctx context.Context, ssid, password string, internet bool) error {
	// The profile may not exist; that is fine.
	if out, err := a.runner.Run(ctx, "nmcli", "connection", "delete", "id", ssid); err != nil {
		logging.Debug("profile delete skipped", zap.String("ssid", ssid), zap.String("output", strings.TrimSpace(out)))
	}

	if _, err := a.runner.Run(ctx, "nmcli", "radio", "wifi", "off"); err != nil {
		return fmt.Errorf("radio off: %w", err)
	}
	a.sleep(a.settleDelay)
	if _, err := a.runner.Run(ctx, "nmcli", "radio", "wifi", "on"); err != nil {
		return fmt.Errorf("radio on: %w", err)
	}
	a.sleep(a.settleDelay)

	args := []string{
		"-w", fmt.Sprintf("%d", int(a.connectTimeout.Seconds())),
		"dev", "wifi", "connect", ssid,
	}
	if password != "" {
		args = append(args, "password", password)
	}
	out, err := a.runner.Run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("connect %q: %w", ssid, err)
	}
	if !strings.Contains(out, "successfully activated") {
		return fmt.Errorf("connect %q: unconfirmed: %s", ssid, strings.TrimSpace(out))
	}

	priority := priorityLogSource
	if internet {
		priority = priorityInternet
	}
	if out, err := a.runner.Run(ctx, "nmcli", "connection", "modify", ssid,
		"connection.autoconnect-priority", fmt.Sprintf("%d", priority)); err != nil {
		// Connected but unprioritized; the association itself stands.
		logging.Warn("priority assignment failed",
			zap.String("ssid", ssid), zap.String("output", strings.TrimSpace(out)), zap.Error(err))
	}
	return nil
}

// ConnectToAnyInternet walks the configured internet-role profiles in order
// and force-connects to the first one whose SSID was seen in scanned. The
// configured order is a deliberate tie-break: earlier entries are preferred.
// It returns the SSID that connected.
func (a *Arbiter) ConnectToAnyInternet(ctx context.Context, profiles []config.NetworkProfile, scanned []string) (string, error) {
	visible := make(map[string]bool, len(scanned))
	for _, ssid := range scanned {
		visible[ssid] = true
	}

	for _, p := range profiles {
		if !visible[p.SSID] {
			continue
		}
		if err := a.ForceConnect(ctx, p.SSID, p.Password, true); err != nil {
			continue
		}
		return p.SSID, nil
	}
	return "", fmt.Errorf("no internet network reachable (%d configured, %d visible)", len(profiles), len(scanned))
}
