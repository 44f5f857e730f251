// Package platform holds the built-in capability adapters the agent falls
// back to when no native positioning or camera service is wired in. Real
// deployments replace these through the same interfaces.
package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldops/OpenFieldAgent/internal/capture"
	"github.com/fieldops/OpenFieldAgent/internal/types"
)

// StaticLocation satisfies location.Provider with a configured fixed
// coordinate pair. Permission is always granted.
type StaticLocation struct {
	coords types.Coordinates
}

func NewStaticLocation(latitude, longitude float64) *StaticLocation {
	return &StaticLocation{coords: types.Coordinates{Latitude: latitude, Longitude: longitude}}
}

func (s *StaticLocation) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *StaticLocation) CurrentFix(ctx context.Context) (types.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return types.Coordinates{}, err
	}
	return s.coords, nil
}

// SpoolCapture satisfies capture.Source by handing out files the UI layer
// drops into a spool directory, keyed by device and purpose. An absent file
// means the technician has not captured (or has cancelled) — no error.
type SpoolCapture struct {
	dir string
}

func NewSpoolCapture(dir string) *SpoolCapture {
	return &SpoolCapture{dir: dir}
}

func (s *SpoolCapture) Capture(ctx context.Context, target capture.Target) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.jpg", target.DeviceID, target.Purpose))
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read spool: %w", err)
	}

	return path, nil
}
