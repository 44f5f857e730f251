package system

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/api/websocket"
	"github.com/fieldops/OpenFieldAgent/internal/backend"
	"github.com/fieldops/OpenFieldAgent/internal/capture"
	"github.com/fieldops/OpenFieldAgent/internal/checklist"
	"github.com/fieldops/OpenFieldAgent/internal/config"
	"github.com/fieldops/OpenFieldAgent/internal/location"
	"github.com/fieldops/OpenFieldAgent/internal/storage"
	"go.uber.org/zap"
)

// LifecycleManager wires the agent together: backend client, checklist
// templates, the local journal, the WebSocket hub and at most one open job
// session at a time.
type LifecycleManager struct {
	config           *config.Config
	storage          *storage.PostgresClient
	backend          *backend.Client
	templates        *checklist.Loader
	wsHub            *websocket.Hub
	locationProvider location.Provider
	captureSource    capture.Source
	logger           *zap.Logger

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	sessionMu sync.Mutex
	session   *Session

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(
	store *storage.PostgresClient,
	cfg *config.Config,
	logger *zap.Logger,
	locationProvider location.Provider,
	captureSource capture.Source,
) (*LifecycleManager, error) {
	be, err := backend.NewClient(cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	templates, err := checklist.NewLoader(cfg.Templates.SearchPaths)
	if err != nil {
		return nil, err
	}

	return &LifecycleManager{
		config:           cfg,
		storage:          store,
		backend:          be,
		templates:        templates,
		wsHub:            websocket.NewHub(logger),
		locationProvider: locationProvider,
		captureSource:    captureSource,
		logger:           logger,
		currentState:     StateInitializing,
		shutdownChan:     make(chan struct{}),
	}, nil
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

func (lm *LifecycleManager) Backend() *backend.Client {
	return lm.backend
}

func (lm *LifecycleManager) Hub() *websocket.Hub {
	return lm.wsHub
}

// Start brings the hub up and marks the agent running.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenFieldAgent")

	lm.setState(StateInitializing)

	go lm.wsHub.Run()

	lm.setState(StateRunning)
	lm.logger.Info("Agent started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort))

	return nil
}

// OpenJob opens (or refocuses) the session for a job. Entering a job that is
// already open counts as the workflow surface regaining focus, which
// rehydrates progress from the server.
func (lm *LifecycleManager) OpenJob(ctx context.Context, jobID string) (*Session, error) {
	lm.sessionMu.Lock()
	defer lm.sessionMu.Unlock()

	if lm.session != nil && lm.session.Job.ID == jobID {
		if err := lm.session.Progress.Rehydrate(ctx); err != nil {
			lm.logger.Warn("Focus rehydration failed",
				zap.String("job_id", jobID), zap.Error(err))
		} else {
			lm.wsHub.Broadcast(websocket.NewProgressMessage(
				websocket.MessageTypeProgressRehydrated, jobID, lm.session.Progress.Snapshot()))
		}
		return lm.session, nil
	}

	if lm.session != nil {
		lm.session.Teardown()
		lm.session = nil
	}

	session, err := lm.openSession(ctx, jobID)
	if err != nil {
		return nil, err
	}

	lm.session = session
	lm.logger.Info("Job session opened",
		zap.String("job_id", jobID),
		zap.String("state", string(session.Runner.State())),
		zap.Int("devices", len(session.Job.Devices)))

	return session, nil
}

// CurrentSession returns the open session, if any.
func (lm *LifecycleManager) CurrentSession() (*Session, bool) {
	lm.sessionMu.Lock()
	defer lm.sessionMu.Unlock()
	if lm.session == nil {
		return nil, false
	}
	return lm.session, true
}

// SessionFor returns the open session when it matches the given job.
func (lm *LifecycleManager) SessionFor(jobID string) (*Session, bool) {
	lm.sessionMu.Lock()
	defer lm.sessionMu.Unlock()
	if lm.session == nil || lm.session.Job.ID != jobID {
		return nil, false
	}
	return lm.session, true
}

func (lm *LifecycleManager) GetCurrentStatus() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
		Error:     lm.lastError,
	}

	lm.sessionMu.Lock()
	if lm.session != nil {
		status.ActiveJob = lm.session.Job.ID
	}
	lm.sessionMu.Unlock()

	return status
}

// Shutdown gracefully shuts down the agent.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down agent")
		lm.setState(StateStopping)

		lm.sessionMu.Lock()
		if lm.session != nil {
			lm.session.Teardown()
			lm.session = nil
		}
		lm.sessionMu.Unlock()

		if lm.storage != nil {
			lm.storage.Close()
		}

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Forcing state transition", zap.Error(err))
	}
	lm.currentState = state

	lm.logger.Info("System state changed", zap.String("state", state.String()))
}
