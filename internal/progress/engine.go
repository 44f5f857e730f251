package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/backend"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"go.uber.org/zap"
)

// Backend is the slice of the field-service API the engine needs.
type Backend interface {
	Progress(ctx context.Context, jobID string) (*backend.ProgressReport, error)
	ReplaceProgress(ctx context.Context, jobID string, devices []types.ChecklistProgress) error
}

// Journal persists accepted snapshots locally so progress survives a restart
// while the backend is unreachable.
type Journal interface {
	SaveSnapshot(ctx context.Context, jobID string, devices []types.ChecklistProgress) error
	LoadSnapshot(ctx context.Context, jobID string) ([]types.ChecklistProgress, error)
}

// Engine holds the technician's in-memory checklist state for one job and
// keeps the server's copy eventually identical to it. Toggles update memory
// immediately; a debounce timer coalesces rapid toggling into one
// full-replace sync. The engine owns its timer handle: Toggle schedules,
// Cancel stops, Flush fires synchronously.
type Engine struct {
	jobID   string
	devices []types.DeviceRef
	totals  map[string]int // device id -> authoritative item count
	window  time.Duration

	backend Backend
	journal Journal // optional
	logger  *zap.Logger

	onSynced func([]types.ChecklistProgress)

	mu    sync.Mutex
	done  map[string]map[int]bool
	timer *time.Timer
}

func NewEngine(jobID string, devices []types.DeviceRef, totals map[string]int, window time.Duration, be Backend, journal Journal, logger *zap.Logger) *Engine {
	done := make(map[string]map[int]bool, len(devices))
	for _, d := range devices {
		done[d.DeviceID] = make(map[int]bool)
	}

	return &Engine{
		jobID:   jobID,
		devices: devices,
		totals:  totals,
		window:  window,
		backend: be,
		journal: journal,
		logger:  logger,
		done:    done,
	}
}

// SetOnSynced registers a callback invoked after every accepted sync.
func (e *Engine) SetOnSynced(fn func([]types.ChecklistProgress)) {
	e.onSynced = fn
}

// Toggle marks one checklist index done or not done. The in-memory map is
// updated with no latency; the sync timer is restarted so rapid toggling
// coalesces into a single network call.
func (e *Engine) Toggle(deviceID string, index int, isDone bool) error {
	e.mu.Lock()
	device, ok := e.done[deviceID]
	if !ok {
		e.mu.Unlock()
		return types.NewValidationError("unknown device: %s", deviceID)
	}

	if isDone {
		device[index] = true
	} else {
		// Absence means incomplete; a false entry is never kept.
		delete(device, index)
	}
	e.scheduleLocked()
	e.mu.Unlock()

	return nil
}

// scheduleLocked restarts the debounce timer. Caller holds e.mu.
func (e *Engine) scheduleLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.window, func() {
		if err := e.Flush(context.Background()); err != nil {
			e.logger.Warn("Debounced progress sync failed", zap.Error(err))
		}
	})
}

// Cancel stops any pending sync timer. Called on teardown.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Flush cancels the pending timer and pushes the full current snapshot
// immediately. Pause and finalize call this first so the server sees every
// edit made up to the transition. A failed sync never rolls back the
// in-memory state.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.backend.ReplaceProgress(ctx, e.jobID, snapshot); err != nil {
		return fmt.Errorf("failed to sync progress: %w", err)
	}

	if e.journal != nil {
		if err := e.journal.SaveSnapshot(ctx, e.jobID, snapshot); err != nil {
			e.logger.Warn("Failed to journal progress snapshot", zap.Error(err))
		}
	}

	e.logger.Info("Progress synced",
		zap.String("job_id", e.jobID),
		zap.Int("devices", len(snapshot)))

	if e.onSynced != nil {
		e.onSynced(snapshot)
	}

	return nil
}

// Snapshot returns the full current per-device progress, sorted indices and
// authoritative item totals included. Always covers every device in the job.
func (e *Engine) Snapshot() []types.ChecklistProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() []types.ChecklistProgress {
	out := make([]types.ChecklistProgress, 0, len(e.devices))
	for _, d := range e.devices {
		total := e.totals[d.DeviceID]
		indices := make([]int, 0, len(e.done[d.DeviceID]))
		for idx := range e.done[d.DeviceID] {
			if idx < 0 || idx >= total {
				// Stale index from an older checklist template; dropping it
				// keeps the server state inside [0, itemCount).
				e.logger.Warn("Dropping out-of-range checklist index",
					zap.String("device_id", d.DeviceID),
					zap.Int("index", idx),
					zap.Int("items_total", total))
				continue
			}
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		out = append(out, types.ChecklistProgress{
			DeviceID:         d.DeviceID,
			CompletedIndices: indices,
			ItemsTotal:       total,
		})
	}
	return out
}

// Rehydrate fetches the server's stored progress and overwrites local state
// with it. Invoked whenever the workflow surface regains focus and when the
// job detail first loads. If the backend is unreachable the last journaled
// snapshot is applied instead.
func (e *Engine) Rehydrate(ctx context.Context) error {
	report, err := e.backend.Progress(ctx, e.jobID)
	if err != nil {
		if e.journal == nil {
			return fmt.Errorf("failed to rehydrate progress: %w", err)
		}
		saved, jerr := e.journal.LoadSnapshot(ctx, e.jobID)
		if jerr != nil {
			return fmt.Errorf("failed to rehydrate progress: %w", err)
		}
		e.logger.Warn("Backend unreachable, rehydrating from local journal",
			zap.String("job_id", e.jobID), zap.Error(err))
		e.apply(saved)
		return nil
	}

	devices := make([]types.ChecklistProgress, 0, len(report.Devices))
	for _, d := range report.Devices {
		devices = append(devices, types.ChecklistProgress{
			DeviceID:         d.ClientDeviceID,
			CompletedIndices: d.CompletedIndices,
			ItemsTotal:       d.ProgressTotal,
		})
	}
	e.apply(devices)
	return nil
}

// apply replaces the in-memory state with the given per-device progress.
func (e *Engine) apply(devices []types.ChecklistProgress) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id := range e.done {
		e.done[id] = make(map[int]bool)
	}

	for _, dev := range devices {
		key := dev.DeviceID
		if _, known := e.done[key]; !known {
			if len(e.devices) == 1 && len(devices) == 1 {
				// Single-device jobs pair the lone server entry with the lone
				// local device even when the keys disagree.
				key = e.devices[0].DeviceID
				e.logger.Warn("Progress key mismatch, applying single-device fallback",
					zap.String("server_key", dev.DeviceID),
					zap.String("local_key", key))
			} else {
				// With more than one device there is no safe pairing rule;
				// the entry is left unaligned.
				e.logger.Warn("Progress key mismatch left unaligned",
					zap.String("server_key", dev.DeviceID),
					zap.Int("job_devices", len(e.devices)))
				continue
			}
		}

		total := e.totals[key]
		for _, idx := range dev.CompletedIndices {
			if idx < 0 || idx >= total {
				continue
			}
			e.done[key][idx] = true
		}
	}
}
