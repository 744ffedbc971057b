// Package syncer contains the sync orchestration engine: the scheduling
// loop, the two-phase transfer pipeline, and the failure-containment state
// machine that ties the network arbiter, the card client, the archive
// client and the dedup ledgers together.
//
// One cycle is: scan → associate to the log source network → pull new log
// files → scan again → associate to an internet network → push unarchived
// files. At most one cycle runs at any instant, all transfers are
// sequential (the device has a single radio), and a file is transferred at
// most once because each ledger is marked immediately after each success.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shayo/flysto-sync/internal/config"
	"github.com/shayo/flysto-sync/internal/control"
	"github.com/shayo/flysto-sync/internal/flashair"
	"github.com/shayo/flysto-sync/internal/ledger"
	"github.com/shayo/flysto-sync/internal/logging"
	"github.com/shayo/flysto-sync/internal/metrics"
)

// Arbiter is the Wi-Fi radio arbitration surface the engine drives.
type Arbiter interface {
	Scan(ctx context.Context) []string
	ForceConnect(ctx context.Context, ssid, password string, internet bool) error
	ConnectToAnyInternet(ctx context.Context, profiles []config.NetworkProfile, scanned []string) (string, error)
}

// Source lists and downloads files from the log-producing peripheral.
type Source interface {
	List(ctx context.Context, dir string) ([]flashair.File, error)
	Download(ctx context.Context, remotePath, localPath string) error
}

// Archive authenticates to and uploads files to the remote archive.
type Archive interface {
	Login(ctx context.Context, email, password string) error
	UploadLog(ctx context.Context, path string) error
}

// Ledger is the dedup store surface the engine needs.
type Ledger interface {
	IsRecorded(name string) bool
	MarkDone(name string, e ledger.Entry) error
}

// Display is the status subset of the control surface.
type Display interface {
	UpdateStatus(state, detail string, progress float64)
	Clear()
}

// Options wires the orchestrator's collaborators. Clients are built per
// cycle through the factory funcs because the configuration — card address,
// archive URL, credentials — is reloaded fresh at every cycle boundary.
type Options struct {
	LoadConfig func() (*config.Config, error)
	Arbiter    Arbiter
	NewSource  func(cfg *config.Config) Source
	NewArchive func(cfg *config.Config) Archive
	Downloads  Ledger // dedup for card → device transfers
	Uploads    Ledger // dedup for device → archive transfers
	Display    Display

	TickInterval  time.Duration // trigger evaluation period, default 10s
	RecoveryPause time.Duration // pause after an unexpected cycle failure, default 30s
}

// Orchestrator is the sync engine.
type Orchestrator struct {
	opts Options

	// running strictly gates cycle execution; manualPending may be
	// coalesced into the next cycle or dropped, never duplicated.
	running       atomic.Bool
	manualPending atomic.Bool
	cycles        atomic.Int64
	interval      atomic.Int64 // nanoseconds; set from config each cycle

	lastCycle time.Time // written only inside the running gate
}

// New creates an orchestrator. All Options fields except the durations are
// required.
func New(opts Options) (*Orchestrator, error) {
	if opts.LoadConfig == nil || opts.Arbiter == nil || opts.NewSource == nil ||
		opts.NewArchive == nil || opts.Downloads == nil || opts.Uploads == nil ||
		opts.Display == nil {
		return nil, fmt.Errorf("syncer: incomplete options")
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = 10 * time.Second
	}
	if opts.RecoveryPause == 0 {
		opts.RecoveryPause = 30 * time.Second
	}
	return &Orchestrator{opts: opts}, nil
}

// Running reports whether a cycle is executing right now.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Cycles returns the number of cycles started.
func (o *Orchestrator) Cycles() int64 { return o.cycles.Load() }

// RequestSync flags a manual trigger. It is safe to call from an interrupt
// callback context. The flag is only set when no cycle is running at
// delivery time; a trigger arriving just as a cycle starts may be dropped,
// which is benign — the operator sees the cycle they asked for.
func (o *Orchestrator) RequestSync() {
	if o.running.Load() {
		logging.Debug("manual trigger ignored: cycle in progress")
		return
	}
	o.manualPending.Store(true)
	logging.Info("manual sync requested")
}

// Run executes the supervisor loop until ctx is cancelled. Cycle failures
// never terminate the loop: an unexpected failure is displayed, followed by
// a fixed recovery pause, and the loop continues.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.opts.Display.UpdateStatus(control.StateIdle, "waiting", control.NoProgress)

	ticker := time.NewTicker(o.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.opts.Display.Clear()
			return ctx.Err()
		case <-ticker.C:
			if !o.due(time.Now()) {
				continue
			}
			if err := o.RunCycle(ctx); err != nil {
				logging.Error("cycle failed", zap.Error(err))
				o.opts.Display.UpdateStatus(control.StateError, truncate(err.Error()), control.NoProgress)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(o.opts.RecoveryPause):
				}
			}
		}
	}
}

// due reports whether a cycle should fire now: either a manual trigger is
// pending or the configured interval has elapsed since the last cycle.
func (o *Orchestrator) due(now time.Time) bool {
	if o.manualPending.Load() {
		return true
	}
	if o.lastCycle.IsZero() {
		return true // first cycle fires immediately
	}
	interval := time.Duration(o.interval.Load())
	if interval == 0 {
		return true
	}
	return now.Sub(o.lastCycle) >= interval
}

// RunCycle executes one full cycle: reload configuration, phase 1
// (download), phase 2 (upload). The running flag is cleared in a deferred
// step whatever happens, and a panic anywhere in the cycle body is
// converted into an internal error for the supervisor.
//
// Contained failures — network, auth, single-file transfer — are reported
// on the display and logged, and RunCycle still returns nil: the next
// scheduled cycle is the retry. Only unexpected failures propagate.
func (o *Orchestrator) RunCycle(ctx context.Context) (err error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil
	}
	defer o.running.Store(false)
	o.manualPending.Store(false)

	n := o.cycles.Add(1)
	start := time.Now()
	o.lastCycle = start

	defer func() {
		metrics.RecordCycle(time.Since(start))
		if r := recover(); r != nil {
			err = internalErr("cycle", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			metrics.RecordCycleError(string(CodeOf(err)))
		}
	}()

	logging.Info("cycle starting", zap.Int64("cycle", n))

	cfg, cfgErr := o.opts.LoadConfig()
	if cfgErr != nil {
		return internalErr("cycle", cfgErr)
	}
	o.interval.Store(int64(cfg.SyncInterval()))

	downloaded, dlErr := o.downloadPhase(ctx, cfg)
	if dlErr != nil {
		if CodeOf(dlErr) == CodeInternal {
			return dlErr
		}
		o.reportContained(dlErr)
	}

	uploaded, ulErr := o.uploadPhase(ctx, cfg)
	if ulErr != nil {
		if CodeOf(ulErr) == CodeInternal {
			return ulErr
		}
		o.reportContained(ulErr)
	}

	logging.Info("cycle complete",
		zap.Int64("cycle", n),
		zap.Int("downloaded", downloaded),
		zap.Int("uploaded", uploaded),
		zap.Duration("took", time.Since(start)))

	if dlErr == nil && ulErr == nil {
		o.opts.Display.UpdateStatus(control.StateDone,
			fmt.Sprintf("%d uploaded", uploaded), control.NoProgress)
	}
	return nil
}

// reportContained surfaces a non-fatal phase error and moves on.
func (o *Orchestrator) reportContained(err error) {
	logging.Warn("phase unavailable this cycle", zap.Error(err))
	metrics.RecordCycleError(string(CodeOf(err)))
	o.opts.Display.UpdateStatus(control.StateError, truncate(err.Error()), control.NoProgress)
}

// downloadPhase associates to the log source network if it is in range and
// pulls every non-directory file not yet recorded in the download ledger,
// sequentially in listing order. Each file is marked immediately after its
// transfer succeeds, so a mid-phase crash loses at most the in-flight file.
func (o *Orchestrator) downloadPhase(ctx context.Context, cfg *config.Config) (int, error) {
	o.opts.Display.UpdateStatus(control.StateScan, "looking for card", control.NoProgress)

	scanned := o.opts.Arbiter.Scan(ctx)
	if !slices.Contains(scanned, cfg.FlashAirWifiSSID) {
		logging.Info("log source not in range", zap.String("ssid", cfg.FlashAirWifiSSID))
		return 0, nil
	}

	o.opts.Display.UpdateStatus(control.StateDownload, cfg.FlashAirWifiSSID, control.NoProgress)
	if err := o.opts.Arbiter.ForceConnect(ctx, cfg.FlashAirWifiSSID, cfg.FlashAirWifiPass, false); err != nil {
		return 0, networkErr("download", err)
	}

	src := o.opts.NewSource(cfg)
	files, err := src.List(ctx, cfg.FlashAirDataLogDir)
	if err != nil {
		return 0, networkErr("download", err)
	}

	var candidates []flashair.File
	for _, f := range files {
		if !f.Dir && !o.opts.Downloads.IsRecorded(f.Name) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		logging.Info("no new logs on card", zap.Int("listed", len(files)))
		return 0, nil
	}

	count := 0
	for i, f := range candidates {
		o.opts.Display.UpdateStatus(control.StateDownload, f.Name, float64(i)/float64(len(candidates)))

		remote := path.Join(cfg.FlashAirDataLogDir, f.Name)
		local := filepath.Join(cfg.LocalRepoPath, f.Name)
		if err := src.Download(ctx, remote, local); err != nil {
			// Transfer failure skips only this file; it stays unmarked.
			logging.Warn("download failed, retrying next cycle",
				zap.String("file", f.Name), zap.Error(err))
			metrics.RecordCycleError(string(CodeTransfer))
			continue
		}
		if err := o.opts.Downloads.MarkDone(f.Name, ledger.Entry{Size: f.Size, Modified: f.Modified}); err != nil {
			return count, internalErr("download", err)
		}
		count++
	}
	return count, nil
}

// uploadPhase pushes local log files not yet recorded in the upload ledger.
// With nothing pending it returns before touching the network at all.
func (o *Orchestrator) uploadPhase(ctx context.Context, cfg *config.Config) (int, error) {
	pending, err := o.pendingUploads(cfg)
	if err != nil {
		return 0, internalErr("upload", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	o.opts.Display.UpdateStatus(control.StateScan, "looking for internet", control.NoProgress)
	scanned := o.opts.Arbiter.Scan(ctx)
	ssid, err := o.opts.Arbiter.ConnectToAnyInternet(ctx, cfg.InternetNetworks, scanned)
	if err != nil {
		return 0, networkErr("upload", err)
	}

	o.opts.Display.UpdateStatus(control.StateUpload, ssid, control.NoProgress)
	arc := o.opts.NewArchive(cfg)
	if err := arc.Login(ctx, cfg.FlystoEmail, cfg.FlystoPassword); err != nil {
		return 0, authErr("upload", err)
	}

	count := 0
	for i, p := range pending {
		name := filepath.Base(p)
		o.opts.Display.UpdateStatus(control.StateUpload, name, float64(i)/float64(len(pending)))

		if err := arc.UploadLog(ctx, p); err != nil {
			logging.Warn("upload failed, retrying next cycle",
				zap.String("file", name), zap.Error(err))
			metrics.RecordCycleError(string(CodeTransfer))
			continue
		}

		entry := ledger.Entry{}
		if info, statErr := os.Stat(p); statErr == nil {
			entry.Size = info.Size()
			entry.Modified = info.ModTime().Unix()
		}
		if err := o.opts.Uploads.MarkDone(name, entry); err != nil {
			return count, internalErr("upload", err)
		}
		count++
	}
	return count, nil
}

// pendingUploads lists local repository files with the expected extension
// whose names are not yet in the upload ledger. A repository that does not
// exist yet simply has nothing pending.
func (o *Orchestrator) pendingUploads(cfg *config.Config) ([]string, error) {
	entries, err := os.ReadDir(cfg.LocalRepoPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), cfg.LogFileExt) {
			continue
		}
		if o.opts.Uploads.IsRecorded(name) {
			continue
		}
		pending = append(pending, filepath.Join(cfg.LocalRepoPath, name))
	}
	return pending, nil
}

// truncate shortens an error message to fit the display's detail line.
func truncate(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
