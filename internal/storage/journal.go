package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/google/uuid"
)

// SaveSnapshot replaces the journaled progress rows for a job with the given
// snapshot. Full-replace, mirroring the server-side semantics.
func (p *PostgresClient) SaveSnapshot(ctx context.Context, jobID string, devices []types.ChecklistProgress) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM progress_journal WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}

	now := time.Now()
	for _, dev := range devices {
		indicesJSON, err := json.Marshal(dev.CompletedIndices)
		if err != nil {
			return fmt.Errorf("failed to marshal indices: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO progress_journal (id, job_id, client_device_id, completed_indices, items_total, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), jobID, dev.DeviceID, indicesJSON, dev.ItemsTotal, now)

		if err != nil {
			return fmt.Errorf("failed to insert journal row: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadSnapshot returns the last journaled progress snapshot for a job.
func (p *PostgresClient) LoadSnapshot(ctx context.Context, jobID string) ([]types.ChecklistProgress, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT client_device_id, completed_indices, items_total
		FROM progress_journal
		WHERE job_id = $1
		ORDER BY client_device_id
	`, jobID)

	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	defer rows.Close()

	snapshot := make([]types.ChecklistProgress, 0)
	for rows.Next() {
		var dev types.ChecklistProgress
		var indicesJSON []byte

		if err := rows.Scan(&dev.DeviceID, &indicesJSON, &dev.ItemsTotal); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}

		if err := json.Unmarshal(indicesJSON, &dev.CompletedIndices); err != nil {
			return nil, fmt.Errorf("failed to unmarshal indices: %w", err)
		}

		snapshot = append(snapshot, dev)
	}

	if len(snapshot) == 0 {
		return nil, fmt.Errorf("no journaled progress for job: %s", jobID)
	}

	return snapshot, nil
}

// SaveCapture records one uploaded capture.
func (p *PostgresClient) SaveCapture(ctx context.Context, jobID string, item types.CaptureItem) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO capture_journal (id, job_id, client_device_id, purpose, server_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), jobID, item.DeviceID, string(item.Purpose), item.ServerName, time.Now())

	if err != nil {
		return fmt.Errorf("failed to insert capture row: %w", err)
	}

	return nil
}

// ListCaptures returns every recorded capture for a job.
func (p *PostgresClient) ListCaptures(ctx context.Context, jobID string) ([]CaptureRow, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, job_id, client_device_id, purpose, server_name, created_at
		FROM capture_journal
		WHERE job_id = $1
		ORDER BY created_at
	`, jobID)

	if err != nil {
		return nil, fmt.Errorf("failed to load captures: %w", err)
	}
	defer rows.Close()

	captures := make([]CaptureRow, 0)
	for rows.Next() {
		var row CaptureRow
		if err := rows.Scan(&row.ID, &row.JobID, &row.DeviceID, &row.Purpose, &row.ServerName, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capture row: %w", err)
		}
		captures = append(captures, row)
	}

	return captures, nil
}

// DeleteJob clears every journal row for a job. Called once the server has
// confirmed finalization; the job's progress is discarded on close.
func (p *PostgresClient) DeleteJob(ctx context.Context, jobID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM progress_journal WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete progress rows: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM capture_journal WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete capture rows: %w", err)
	}

	return tx.Commit(ctx)
}
