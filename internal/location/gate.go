package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/types"
	"go.uber.org/zap"
)

// Provider is the device positioning capability. Implementations wrap
// whatever the platform offers; the gate only depends on this contract.
type Provider interface {
	// RequestPermission asks for foreground positioning access. Returns
	// false when the technician (or platform policy) denies it.
	RequestPermission(ctx context.Context) (bool, error)

	// CurrentFix performs a single high-accuracy position read.
	CurrentFix(ctx context.Context) (types.Coordinates, error)
}

// Gate stamps workflow transitions with a coordinate pair. Every transition
// that requires proof of physical presence calls Acquire and aborts on error;
// it never silently proceeds without a fix.
type Gate struct {
	provider   Provider
	fixTimeout time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	granted bool
}

func NewGate(provider Provider, fixTimeout time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		provider:   provider,
		fixTimeout: fixTimeout,
		logger:     logger,
	}
}

// Acquire requests permission if not already granted and performs one
// high-accuracy fix. Denial returns types.ErrLocationDenied; a failed fix
// returns types.ErrLocationUnavailable. No automatic retries.
func (g *Gate) Acquire(ctx context.Context) (types.Coordinates, error) {
	if err := g.ensurePermission(ctx); err != nil {
		return types.Coordinates{}, err
	}

	fixCtx, cancel := context.WithTimeout(ctx, g.fixTimeout)
	defer cancel()

	coords, err := g.provider.CurrentFix(fixCtx)
	if err != nil {
		g.logger.Warn("Location fix failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return types.Coordinates{}, types.ErrLocationUnavailable
		}
		return types.Coordinates{}, fmt.Errorf("%w: %v", types.ErrLocationUnavailable, err)
	}

	g.logger.Debug("Location fix acquired",
		zap.Float64("latitude", coords.Latitude),
		zap.Float64("longitude", coords.Longitude))

	return coords, nil
}

// ensurePermission serializes the one-time permission request; concurrent
// transitions share a single grant.
func (g *Gate) ensurePermission(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.granted {
		return nil
	}

	granted, err := g.provider.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("failed to request location permission: %w", err)
	}
	if !granted {
		g.logger.Warn("Location permission denied")
		return types.ErrLocationDenied
	}

	g.granted = true
	return nil
}
