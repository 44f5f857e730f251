package storage

import (
	"time"

	"github.com/google/uuid"
)

// CaptureRow records an uploaded capture so a restarted agent knows which
// photos and signature already carry server-assigned names.
type CaptureRow struct {
	ID         uuid.UUID `json:"id"`
	JobID      string    `json:"job_id"`
	DeviceID   string    `json:"client_device_id"`
	Purpose    string    `json:"purpose"`
	ServerName string    `json:"server_name"`
	CreatedAt  time.Time `json:"created_at"`
}
