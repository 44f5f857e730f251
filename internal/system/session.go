package system

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/api/websocket"
	"github.com/fieldops/OpenFieldAgent/internal/capture"
	"github.com/fieldops/OpenFieldAgent/internal/clock"
	"github.com/fieldops/OpenFieldAgent/internal/guard"
	"github.com/fieldops/OpenFieldAgent/internal/location"
	"github.com/fieldops/OpenFieldAgent/internal/progress"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/fieldops/OpenFieldAgent/internal/workflow"
	"go.uber.org/zap"
)

// Session bundles everything the agent runs for one open maintenance job:
// the workflow runner, the progress engine, the capture pipeline, the
// elapsed monitor and the back-navigation guard.
type Session struct {
	Job      *types.MaintenanceJob
	Runner   *workflow.Runner
	Progress *progress.Engine
	Captures *capture.Pipeline
	Monitor  *clock.Monitor
	Guard    *guard.Guard
}

// Teardown cancels the session's timers. In-flight requests are not
// cancelled; their responses land in handlers that no longer exist.
func (s *Session) Teardown() {
	s.Runner.Teardown()
}

// openSession builds a fully wired session for a job: fetch the job, resolve
// checklist totals per device type, derive the landing state from the last
// recorded action, restore journaled captures, and rehydrate progress.
func (lm *LifecycleManager) openSession(ctx context.Context, jobID string) (*Session, error) {
	job, err := lm.backend.Job(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	totals := make(map[string]int, len(job.Devices))
	for _, device := range job.Devices {
		template, err := lm.templates.Load(device.DeviceType)
		if err != nil {
			return nil, fmt.Errorf("failed to load checklist for %s: %w", device.DeviceType, err)
		}
		totals[device.DeviceID] = template.ItemCount()
	}

	monitor := clock.NewMonitor(lm.config.Workflow.ClockTick, func(elapsed time.Duration, display string) {
		lm.wsHub.Broadcast(websocket.NewClockTickMessage(jobID, elapsed, display))
	})

	pipeline := capture.NewPipeline(jobID, lm.captureSource, lm.backend, lm.logger)
	pipeline.SetOnChange(func(item types.CaptureItem) {
		lm.wsHub.Broadcast(websocket.NewCaptureStatusMessage(item))
		if lm.storage != nil && item.Uploaded() {
			if err := lm.storage.SaveCapture(context.Background(), jobID, item); err != nil {
				lm.logger.Warn("Failed to journal capture", zap.Error(err))
			}
		}
	})

	if lm.storage != nil {
		rows, err := lm.storage.ListCaptures(ctx, jobID)
		if err != nil {
			lm.logger.Warn("Failed to read capture journal", zap.Error(err))
		} else {
			restored := make([]types.CaptureItem, 0, len(rows))
			for _, row := range rows {
				restored = append(restored, types.CaptureItem{
					DeviceID:   row.DeviceID,
					Purpose:    types.CapturePurpose(row.Purpose),
					ServerName: row.ServerName,
					Status:     types.CaptureDone,
				})
			}
			pipeline.Restore(restored)
		}
	}

	var journal progress.Journal
	if lm.storage != nil {
		journal = lm.storage
	}

	engine := progress.NewEngine(jobID, job.Devices, totals,
		lm.config.Workflow.SyncDebounce, lm.backend, journal, lm.logger)
	engine.SetOnSynced(func(devices []types.ChecklistProgress) {
		lm.wsHub.Broadcast(websocket.NewProgressMessage(websocket.MessageTypeProgressSynced, jobID, devices))
	})

	gate := location.NewGate(lm.locationProvider, lm.config.Location.FixTimeout, lm.logger)

	var cleaner workflow.Cleaner
	if lm.storage != nil {
		cleaner = lm.storage
	}

	runner := workflow.NewRunner(job, lm.backend, gate, pipeline, engine,
		monitor, lm.wsHub, cleaner, lm.logger)

	// The last recorded action decides which screen the technician lands on.
	lastAction, err := lm.backend.LastAction(ctx, jobID)
	if err != nil {
		lm.logger.Warn("Failed to read last action, deriving from status alone",
			zap.String("job_id", jobID), zap.Error(err))
		lastAction = nil
	}
	runner.Adopt(workflow.DeriveState(job, lastAction))

	if err := engine.Rehydrate(ctx); err != nil {
		// Entry proceeds with empty progress; the next focus retries.
		lm.logger.Warn("Initial progress rehydration failed",
			zap.String("job_id", jobID), zap.Error(err))
	} else {
		lm.wsHub.Broadcast(websocket.NewProgressMessage(
			websocket.MessageTypeProgressRehydrated, jobID, engine.Snapshot()))
	}

	return &Session{
		Job:      job,
		Runner:   runner,
		Progress: engine,
		Captures: pipeline,
		Monitor:  monitor,
		Guard:    guard.New(runner, lm.logger),
	}, nil
}
