package types

// CapturePurpose tags what a captured image documents.
type CapturePurpose string

const (
	PurposeInitial   CapturePurpose = "initial"
	PurposeFinal     CapturePurpose = "final"
	PurposePart      CapturePurpose = "part"
	PurposeSignature CapturePurpose = "signature"
)

// CaptureStatus is the lifecycle of a single photo or signature capture.
type CaptureStatus string

const (
	CaptureIdle      CaptureStatus = "idle"
	CaptureCapturing CaptureStatus = "capturing"
	CaptureUploading CaptureStatus = "uploading"
	CaptureDone      CaptureStatus = "captured"
	CaptureFailed    CaptureStatus = "failed"
)

// CaptureItem is one photo or signature awaiting or having completed upload.
// LocalURI is a transient capability-provided reference; ServerName is only
// set once the upload has been confirmed.
type CaptureItem struct {
	DeviceID   string         `json:"client_device_id"`
	Purpose    CapturePurpose `json:"purpose"`
	LocalURI   string         `json:"local_uri,omitempty"`
	ServerName string         `json:"server_name,omitempty"`
	Status     CaptureStatus  `json:"status"`
}

// Uploaded reports whether the item holds a server-assigned name.
func (c *CaptureItem) Uploaded() bool {
	return c.Status == CaptureDone && c.ServerName != ""
}
