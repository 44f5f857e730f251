package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/api/websocket"
	"github.com/fieldops/OpenFieldAgent/internal/backend"
	"github.com/fieldops/OpenFieldAgent/internal/clock"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"go.uber.org/zap"
)

// Backend is the slice of the field-service API the runner drives.
type Backend interface {
	Start(ctx context.Context, jobID string, coords types.Coordinates) (*backend.TransitionResult, error)
	Pause(ctx context.Context, jobID string, coords types.Coordinates, reason string) (*backend.TransitionResult, error)
	Resume(ctx context.Context, jobID string, coords types.Coordinates) (*backend.TransitionResult, error)
	Finalize(ctx context.Context, jobID string, req backend.FinalizeRequest) error
}

// LocationSource stamps transitions with a coordinate pair.
type LocationSource interface {
	Acquire(ctx context.Context) (types.Coordinates, error)
}

// Captures is the runner's view of the capture pipeline.
type Captures interface {
	HasUploadedInitial() bool
	MissingFinal(deviceIDs []string) []string
	SignatureName() (string, bool)
	FinalPhotos(deviceIDs []string) []backend.StoredPhoto
	Release()
}

// Flusher is the runner's view of the progress engine: pending edits are
// pushed synchronously before pause and finalize so the server never closes
// over stale checklist state.
type Flusher interface {
	Flush(ctx context.Context) error
	Cancel()
}

// Broadcaster pushes state changes to the technician UI.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Cleaner removes local journal rows once a job is closed.
type Cleaner interface {
	DeleteJob(ctx context.Context, jobID string) error
}

// Runner owns the maintenance lifecycle for one job: it validates that
// photos, signature and progress are satisfied before a transition, stamps
// every transition with a location fix, and never advances past a state the
// server has not confirmed.
type Runner struct {
	logger   *zap.Logger
	backend  Backend
	gate     LocationSource
	captures Captures
	progress Flusher
	monitor  *clock.Monitor
	wsHub    Broadcaster
	cleaner  Cleaner

	mu              sync.Mutex
	jobID           string
	devices         []types.DeviceRef
	state           State
	startedAt       *time.Time
	totalPausedMS   int64
	lastStateChange time.Time
}

func NewRunner(
	job *types.MaintenanceJob,
	be Backend,
	gate LocationSource,
	captures Captures,
	progress Flusher,
	monitor *clock.Monitor,
	wsHub Broadcaster,
	cleaner Cleaner,
	logger *zap.Logger,
) *Runner {
	r := &Runner{
		logger:          logger,
		backend:         be,
		gate:            gate,
		captures:        captures,
		progress:        progress,
		monitor:         monitor,
		wsHub:           wsHub,
		cleaner:         cleaner,
		jobID:           job.ID,
		devices:         job.Devices,
		state:           StateAssigned,
		startedAt:       job.StartedAt,
		totalPausedMS:   job.TotalPausedDuration,
		lastStateChange: time.Now(),
	}

	if monitor != nil {
		monitor.SetBaseline(r.startedAt, r.totalPausedMS)
	}

	return r
}

// DeriveState maps the server-side job status and the last recorded action
// onto the runner state the technician should land on when (re)entering.
func DeriveState(job *types.MaintenanceJob, last *types.ActionRecord) State {
	switch job.Status {
	case types.JobCompleted:
		return StateCompleted
	case types.JobInProgress:
		if last != nil && last.Action == types.ActionPause {
			return StatePaused
		}
		return StateRunning
	default:
		return StateAssigned
	}
}

// Adopt sets the runner state derived on (re)entry and starts or stops the
// elapsed monitor accordingly.
func (r *Runner) Adopt(state State) {
	r.mu.Lock()
	r.state = state
	r.lastStateChange = time.Now()
	r.mu.Unlock()

	if r.monitor != nil {
		if state == StateRunning || state == StatePaused {
			r.monitor.Start()
		} else {
			r.monitor.Stop()
		}
	}
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) Status() JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var display string
	if r.monitor != nil {
		_, display = r.monitor.Current()
	} else {
		display = clock.Format(clock.Elapsed(r.startedAt, r.totalPausedMS, time.Now()))
	}

	return JobStatus{
		JobID:               r.jobID,
		State:               r.state,
		StartedAt:           r.startedAt,
		TotalPausedDuration: r.totalPausedMS,
		Elapsed:             display,
		LastStateChange:     r.lastStateChange,
	}
}

// Execute dispatches a UI command to the matching transition.
func (r *Runner) Execute(ctx context.Context, cmd Command, reason, observations string) error {
	r.logger.Info("Workflow command received",
		zap.String("job_id", r.jobID),
		zap.String("command", string(cmd)),
		zap.String("current_state", string(r.State())))

	switch cmd {
	case CommandBegin:
		return r.Begin(ctx)
	case CommandPause:
		return r.Pause(ctx, reason)
	case CommandResume:
		return r.Resume(ctx)
	case CommandFinalize:
		return r.Finalize(ctx, observations)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// Begin starts the job. Requires at least one uploaded initial photo for at
// least one device and a location fix. A job that already carries a start
// timestamp takes the resume path instead of starting again.
func (r *Runner) Begin(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateRunning || r.state == StateCompleted {
		state := r.state
		r.mu.Unlock()
		return types.NewValidationError("cannot begin: job is %s", state)
	}
	startedAt := r.startedAt
	r.mu.Unlock()

	if !r.captures.HasUploadedInitial() {
		return types.NewValidationError("capture at least one initial photo before starting")
	}

	coords, err := r.gate.Acquire(ctx)
	if err != nil {
		return err
	}

	var result *backend.TransitionResult
	if startedAt != nil {
		result, err = r.backend.Resume(ctx, r.jobID, coords)
	} else {
		result, err = r.backend.Start(ctx, r.jobID, coords)
	}
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	r.mu.Lock()
	if result != nil && result.StartedAt != nil {
		r.startedAt = result.StartedAt
	} else if r.startedAt == nil {
		now := time.Now()
		r.startedAt = &now
	}
	if result != nil && result.TotalPausedDuration > 0 {
		r.totalPausedMS = result.TotalPausedDuration
	}
	r.mu.Unlock()

	r.setState(StateRunning)
	if r.monitor != nil {
		r.mu.Lock()
		r.monitor.SetBaseline(r.startedAt, r.totalPausedMS)
		r.mu.Unlock()
		r.monitor.Start()
	}

	return nil
}

// Pause suspends the job. Pending checklist edits are flushed before the
// server call so no toggle made up to this moment is lost.
func (r *Runner) Pause(ctx context.Context, reason string) error {
	if state := r.State(); state != StateRunning {
		return types.NewValidationError("cannot pause: job is %s", state)
	}

	coords, err := r.gate.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := r.progress.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush progress before pause: %w", err)
	}

	result, err := r.backend.Pause(ctx, r.jobID, coords, reason)
	if err != nil {
		return fmt.Errorf("failed to pause job: %w", err)
	}

	r.applyTiming(result)
	r.setState(StatePaused)
	return nil
}

// Resume continues a paused job. The paused interval is accounted in
// total_paused_duration so the clock never double-counts it.
func (r *Runner) Resume(ctx context.Context) error {
	if state := r.State(); state != StatePaused {
		return types.NewValidationError("cannot resume: job is %s", state)
	}

	coords, err := r.gate.Acquire(ctx)
	if err != nil {
		return err
	}

	result, err := r.backend.Resume(ctx, r.jobID, coords)
	if err != nil {
		return fmt.Errorf("failed to resume job: %w", err)
	}

	r.applyTiming(result)
	r.setState(StateRunning)
	return nil
}

// Finalize closes the job. Every unmet requirement is rejected locally with
// a user-facing message before any server call: one uploaded final photo per
// device, an uploaded signature, and a location fix.
func (r *Runner) Finalize(ctx context.Context, observations string) error {
	if state := r.State(); state != StateRunning && state != StatePaused {
		return types.NewValidationError("cannot finalize: job is %s", state)
	}

	deviceIDs := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		deviceIDs = append(deviceIDs, d.DeviceID)
	}

	if missing := r.captures.MissingFinal(deviceIDs); len(missing) > 0 {
		return types.NewValidationError("final photo missing for devices: %v", missing)
	}

	signature, ok := r.captures.SignatureName()
	if !ok {
		return types.NewValidationError("client signature is required before finalizing")
	}

	coords, err := r.gate.Acquire(ctx)
	if err != nil {
		return err
	}

	if err := r.progress.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush progress before finalize: %w", err)
	}

	req := backend.FinalizeRequest{
		Latitude:          coords.Latitude,
		Longitude:         coords.Longitude,
		FinalObservations: observations,
		ClientSignature:   signature,
		FinalPhotos:       r.captures.FinalPhotos(deviceIDs),
	}

	if err := r.backend.Finalize(ctx, r.jobID, req); err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	r.setState(StateCompleted)
	r.teardown(ctx)
	return nil
}

// BackAllowed is the Action Guard predicate: back navigation is blocked
// while the job is running and lifts on pause or completion.
func (r *Runner) BackAllowed() bool {
	return r.State() != StateRunning
}

// Teardown cancels the debounce timer and the elapsed ticker when the
// workflow surface is left without closing the job.
func (r *Runner) Teardown() {
	r.progress.Cancel()
	if r.monitor != nil {
		r.monitor.Stop()
	}
}

func (r *Runner) applyTiming(result *backend.TransitionResult) {
	if result == nil {
		return
	}
	r.mu.Lock()
	if result.StartedAt != nil {
		r.startedAt = result.StartedAt
	}
	if result.TotalPausedDuration > 0 {
		r.totalPausedMS = result.TotalPausedDuration
	}
	if r.monitor != nil {
		r.monitor.SetBaseline(r.startedAt, r.totalPausedMS)
	}
	r.mu.Unlock()
}

func (r *Runner) setState(state State) {
	r.mu.Lock()
	previous := r.state
	r.state = state
	r.lastStateChange = time.Now()
	r.mu.Unlock()

	r.logger.Info("Workflow state changed",
		zap.String("job_id", r.jobID),
		zap.String("state", string(state)),
		zap.String("previous", string(previous)))

	if r.wsHub != nil {
		r.wsHub.Broadcast(websocket.NewWorkflowStateMessage(r.jobID, string(state), string(previous)))
	}
}

// teardown releases per-job resources after the server confirmed completion.
func (r *Runner) teardown(ctx context.Context) {
	r.progress.Cancel()
	if r.monitor != nil {
		r.monitor.Stop()
	}
	r.captures.Release()

	if r.cleaner != nil {
		if err := r.cleaner.DeleteJob(ctx, r.jobID); err != nil {
			r.logger.Warn("Failed to clear progress journal", zap.Error(err))
		}
	}
}
