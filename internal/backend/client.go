package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fieldops/OpenFieldAgent/internal/auth"
	"github.com/fieldops/OpenFieldAgent/internal/config"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"go.uber.org/zap"
)

// Client consumes the remote field-service API. All calls are JSON over
// HTTPS with a technician bearer token; the API itself is a black box.
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	inspector *auth.Inspector
	logger    *zap.Logger
}

func NewClient(cfg config.BackendConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend base url: %w", err)
	}

	return &Client{
		baseURL:   base.String(),
		token:     cfg.BearerToken(),
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		inspector: auth.NewInspector(),
		logger:    logger,
	}, nil
}

// Job fetches the maintenance job detail (devices, status, pause accounting).
func (c *Client) Job(ctx context.Context, jobID string) (*types.MaintenanceJob, error) {
	var job types.MaintenanceJob
	path := fmt.Sprintf("/technicianMaintenances/%s", jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Progress fetches the server's stored per-device checklist progress.
func (c *Client) Progress(ctx context.Context, jobID string) (*ProgressReport, error) {
	var report ProgressReport
	path := fmt.Sprintf("/technicianMaintenances/%s/progress", jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ReplaceProgress sends a full snapshot, replacing whatever the server holds
// for each listed device. Never a merge.
func (c *Client) ReplaceProgress(ctx context.Context, jobID string, devices []types.ChecklistProgress) error {
	path := fmt.Sprintf("/technicianMaintenances/%s/progress", jobID)
	return c.do(ctx, http.MethodPost, path, progressBody{Devices: devices}, nil)
}

// Start reports the job as started at the given position.
func (c *Client) Start(ctx context.Context, jobID string, coords types.Coordinates) (*TransitionResult, error) {
	return c.transition(ctx, jobID, "start", coordinatesBody{
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
	})
}

// Pause reports the job as paused at the given position.
func (c *Client) Pause(ctx context.Context, jobID string, coords types.Coordinates, reason string) (*TransitionResult, error) {
	return c.transition(ctx, jobID, "pause", coordinatesBody{
		Latitude:    coords.Latitude,
		Longitude:   coords.Longitude,
		PauseReason: reason,
	})
}

// Resume reports the job as resumed at the given position.
func (c *Client) Resume(ctx context.Context, jobID string, coords types.Coordinates) (*TransitionResult, error) {
	return c.transition(ctx, jobID, "resume", coordinatesBody{
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
	})
}

func (c *Client) transition(ctx context.Context, jobID, action string, body coordinatesBody) (*TransitionResult, error) {
	var result TransitionResult
	path := fmt.Sprintf("/technicianMaintenances/%s/%s", jobID, action)
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadPhotos sends a photo batch and returns the server-assigned names.
func (c *Client) UploadPhotos(ctx context.Context, jobID string, photos []PhotoUpload) ([]StoredPhoto, error) {
	var resp photosResponse
	path := fmt.Sprintf("/technicianMaintenances/%s/photos", jobID)
	if err := c.do(ctx, http.MethodPost, path, photosBody{Photos: photos}, &resp); err != nil {
		return nil, err
	}
	return resp.Photos, nil
}

// Finalize closes the job with observations, the client signature and the
// per-device final photos.
func (c *Client) Finalize(ctx context.Context, jobID string, req FinalizeRequest) error {
	path := fmt.Sprintf("/technicianMaintenances/%s/finalize", jobID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// LastAction fetches the most recent workflow action the server has recorded
// for the job. Used on (re)entry to pick the landing state.
func (c *Client) LastAction(ctx context.Context, jobID string) (*types.ActionRecord, error) {
	var record types.ActionRecord
	path := fmt.Sprintf("/technicianMaintenances/%s/lastAction", jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token != "" && !c.inspector.Valid(c.token) {
		return types.ErrSessionExpired
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	if !env.Success {
		c.logger.Warn("Backend rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message))
		return &types.APIError{Endpoint: path, Message: env.Message}
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data from %s: %w", path, err)
		}
	}

	return nil
}
