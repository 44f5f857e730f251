package interfaces

import (
	"context"

	"github.com/fieldops/OpenFieldAgent/internal/config"
	"github.com/fieldops/OpenFieldAgent/internal/storage"
	"github.com/fieldops/OpenFieldAgent/internal/system"
)

// LifecycleManager is the surface the local API drives the agent through.
type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	OpenJob(ctx context.Context, jobID string) (*system.Session, error)
	CurrentSession() (*system.Session, bool)
	SessionFor(jobID string) (*system.Session, bool)
	GetCurrentStatus() system.SystemStatus
	Shutdown(ctx context.Context) error
}
