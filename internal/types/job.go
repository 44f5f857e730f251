package types

import "time"

// JobStatus is the server-side lifecycle status of a maintenance job.
type JobStatus string

const (
	JobAssigned   JobStatus = "assigned"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
)

// MaintenanceJob is one maintenance visit assigned to a technician,
// covering one or more devices. It is created by upstream scheduling and
// mutated only through workflow transitions.
type MaintenanceJob struct {
	ID                  string      `json:"id"`
	Status              JobStatus   `json:"status"`
	ScheduledDate       string      `json:"scheduled_date"`
	Shift               string      `json:"shift,omitempty"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	TotalPausedDuration int64       `json:"total_paused_duration"` // milliseconds
	Devices             []DeviceRef `json:"devices"`
	Description         string      `json:"description,omitempty"`
}

// DeviceRef is one physical unit under service within a job. Immutable for
// the duration of the job. DeviceID is the join key against server progress.
type DeviceRef struct {
	DeviceID   string `json:"client_device_id"`
	DeviceType string `json:"device_type"`
	Brand      string `json:"brand,omitempty"`
	Model      string `json:"model,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Address    string `json:"address,omitempty"`
}

// ChecklistProgress is the per-device, per-job record of which checklist
// item indices are marked done. Absence of an index means incomplete; a
// "not completed" entry is never persisted.
type ChecklistProgress struct {
	DeviceID         string `json:"client_device_id"`
	CompletedIndices []int  `json:"completed_indices"`
	ItemsTotal       int    `json:"items_total"`
}

// ActionType is the last workflow action the server has recorded for a job.
type ActionType string

const (
	ActionStart  ActionType = "start"
	ActionPause  ActionType = "pause"
	ActionResume ActionType = "resume"
)

// ActionRecord is read from the server on (re)entry to decide which screen
// the technician should land on. Never authored locally.
type ActionRecord struct {
	JobID      string     `json:"maintenance_id"`
	Action     ActionType `json:"action"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Coordinates is a single positioning fix used to stamp workflow transitions.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
