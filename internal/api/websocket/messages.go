package websocket

import (
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Workflow lifecycle messages
	MessageTypeWorkflowState MessageType = "workflow_state"

	// Elapsed clock messages
	MessageTypeClockTick MessageType = "clock_tick"

	// Checklist progress messages
	MessageTypeProgressSynced     MessageType = "progress_synced"
	MessageTypeProgressRehydrated MessageType = "progress_rehydrated"

	// Capture pipeline messages
	MessageTypeCaptureStatus MessageType = "capture_status"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// WorkflowStateData represents a workflow state change
type WorkflowStateData struct {
	JobID    string `json:"job_id"`
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// ClockTickData carries one elapsed-time refresh
type ClockTickData struct {
	JobID     string `json:"job_id"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Display   string `json:"display"`
}

// ProgressData carries a per-device progress snapshot
type ProgressData struct {
	JobID   string                    `json:"job_id"`
	Devices []types.ChecklistProgress `json:"devices"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Helper functions for creating specific message types

func NewWorkflowStateMessage(jobID, newState, previousState string) Message {
	return NewMessage(MessageTypeWorkflowState, WorkflowStateData{
		JobID:    jobID,
		State:    newState,
		Previous: previousState,
	})
}

func NewClockTickMessage(jobID string, elapsed time.Duration, display string) Message {
	return NewMessage(MessageTypeClockTick, ClockTickData{
		JobID:     jobID,
		ElapsedMS: elapsed.Milliseconds(),
		Display:   display,
	})
}

func NewProgressMessage(msgType MessageType, jobID string, devices []types.ChecklistProgress) Message {
	return NewMessage(msgType, ProgressData{
		JobID:   jobID,
		Devices: devices,
	})
}

func NewCaptureStatusMessage(item types.CaptureItem) Message {
	return NewMessage(MessageTypeCaptureStatus, item)
}
