package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/types"
)

// envelope is the uniform response wrapper of the field-service API.
// success=false is an application-level rejection, not a transport failure.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IndexSet is a list of completed checklist indices. Older backend versions
// deliver it as a comma-separated string, newer ones as a JSON array; both
// decode into the same value.
type IndexSet []int

func (s *IndexSet) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		if value == "" {
			*s = IndexSet{}
			return nil
		}
		parts := strings.Split(value, ",")
		out := make(IndexSet, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", p, err)
			}
			out = append(out, n)
		}
		*s = out
		return nil
	case []any:
		out := make(IndexSet, 0, len(value))
		for _, item := range value {
			n, ok := item.(float64)
			if !ok {
				return fmt.Errorf("invalid index type: %T", item)
			}
			out = append(out, int(n))
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("invalid completed_indices type: %T", value)
	}
}

// DeviceProgress is one device's stored progress as reported by the server.
type DeviceProgress struct {
	ClientDeviceID         string   `json:"client_device_id"`
	CompletedIndices       IndexSet `json:"completed_indices"`
	ProgressTotal          int      `json:"progress_total"`
	ProgressCompletedCount int      `json:"progress_completed_count"`
	ProgressPct            float64  `json:"progress_pct"`
	ProgressStatus         string   `json:"progress_status"`
}

// ProgressReport is the GET /progress payload.
type ProgressReport struct {
	Devices []DeviceProgress `json:"devices"`
}

// PhotoUpload is one photo in a batch upload request. Photo carries the
// base64-encoded image bytes; Name is the client-generated identifier the
// server may replace with its own.
type PhotoUpload struct {
	ClientDeviceID string               `json:"client_device_id"`
	Name           string               `json:"name"`
	Photo          string               `json:"photo"`
	PhotoType      types.CapturePurpose `json:"photo_type"`
}

// StoredPhoto echoes a photo with its server-assigned name.
type StoredPhoto struct {
	ClientDeviceID string               `json:"client_device_id"`
	Name           string               `json:"name"`
	PhotoType      types.CapturePurpose `json:"photo_type"`
}

// TransitionResult carries the server-confirmed timing fields after a
// start, pause or resume call.
type TransitionResult struct {
	StartedAt           *time.Time `json:"started_at,omitempty"`
	TotalPausedDuration int64      `json:"total_paused_duration,omitempty"`
}

// FinalizeRequest is the closing payload of a job. FinalPhotos references
// already-uploaded photos by their server-assigned names.
type FinalizeRequest struct {
	Latitude          float64       `json:"latitude"`
	Longitude         float64       `json:"longitude"`
	FinalObservations string        `json:"final_observations,omitempty"`
	ClientSignature   string        `json:"client_signature"`
	FinalPhotos       []StoredPhoto `json:"final_photos"`
}

type coordinatesBody struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PauseReason string  `json:"pause_reason,omitempty"`
}

type progressBody struct {
	Devices []types.ChecklistProgress `json:"devices"`
}

type photosBody struct {
	Photos []PhotoUpload `json:"photos"`
}

type photosResponse struct {
	Photos []StoredPhoto `json:"photos"`
}
