package workflow

import "time"

type State string

const (
	StateAssigned  State = "assigned"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

type Command string

const (
	CommandBegin    Command = "begin"
	CommandPause    Command = "pause"
	CommandResume   Command = "resume"
	CommandFinalize Command = "finalize"
)

// JobStatus is the runner's externally visible state for one job.
type JobStatus struct {
	JobID               string     `json:"job_id"`
	State               State      `json:"state"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	TotalPausedDuration int64      `json:"total_paused_duration"`
	Elapsed             string     `json:"elapsed"`
	LastStateChange     time.Time  `json:"last_state_change"`
}
