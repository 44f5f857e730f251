package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/backend"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignatureDeviceID keys the single per-job client signature in the same
// item map as device photos.
const SignatureDeviceID = "signature"

// Target identifies one capture slot: a device crossed with a purpose, or
// the job's signature.
type Target struct {
	DeviceID string
	Purpose  types.CapturePurpose
}

// Source is the platform capture capability (camera, gallery, signature
// pad). It returns the local path of the captured image; an empty path with
// a nil error means the technician cancelled. The signature capability
// renders vector strokes to a raster image before returning its path.
type Source interface {
	Capture(ctx context.Context, target Target) (string, error)
}

// Uploader sends photo batches upstream and returns server-assigned names.
type Uploader interface {
	UploadPhotos(ctx context.Context, jobID string, photos []backend.PhotoUpload) ([]backend.StoredPhoto, error)
}

// Pipeline drives capture-then-upload for one media item at a time and
// tracks per-item status keyed by device and purpose. Upload failures revert
// only the failed item; everything already captured is untouched.
type Pipeline struct {
	jobID    string
	source   Source
	uploader Uploader
	logger   *zap.Logger
	onChange func(types.CaptureItem)

	mu    sync.Mutex
	items map[Target]*types.CaptureItem
}

func NewPipeline(jobID string, source Source, uploader Uploader, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		jobID:    jobID,
		source:   source,
		uploader: uploader,
		logger:   logger,
		items:    make(map[Target]*types.CaptureItem),
	}
}

// SetOnChange registers a callback invoked after every item status change.
func (p *Pipeline) SetOnChange(fn func(types.CaptureItem)) {
	p.onChange = fn
}

// Capture runs the full capture-and-upload sequence for a device photo.
// A cancelled capture returns types.ErrCaptureCancelled and leaves the item
// uncaptured.
func (p *Pipeline) Capture(ctx context.Context, deviceID string, purpose types.CapturePurpose) (*types.CaptureItem, error) {
	if purpose == types.PurposeSignature {
		return nil, types.NewValidationError("signature must be captured through CaptureSignature")
	}
	return p.run(ctx, Target{DeviceID: deviceID, Purpose: purpose})
}

// CaptureSignature captures and uploads the client signature. The save
// action is only enabled once both signer fields are present.
func (p *Pipeline) CaptureSignature(ctx context.Context, signerName, signerID string) (*types.CaptureItem, error) {
	if strings.TrimSpace(signerName) == "" || strings.TrimSpace(signerID) == "" {
		return nil, types.NewValidationError("signer name and signer id are required before saving the signature")
	}
	return p.run(ctx, Target{DeviceID: SignatureDeviceID, Purpose: types.PurposeSignature})
}

func (p *Pipeline) run(ctx context.Context, target Target) (*types.CaptureItem, error) {
	p.setStatus(target, types.CaptureCapturing, "", "")

	uri, err := p.source.Capture(ctx, target)
	if err != nil {
		p.setStatus(target, types.CaptureIdle, "", "")
		return nil, fmt.Errorf("capture failed for %s/%s: %w", target.DeviceID, target.Purpose, err)
	}
	if uri == "" {
		// Technician dismissed the capture UI; the slot stays open.
		p.setStatus(target, types.CaptureIdle, "", "")
		return nil, types.ErrCaptureCancelled
	}

	p.setStatus(target, types.CaptureUploading, uri, "")

	data, err := os.ReadFile(uri)
	if err != nil {
		p.setStatus(target, types.CaptureFailed, uri, "")
		return nil, fmt.Errorf("failed to read capture %s: %w", uri, err)
	}

	// The generated name is the client-side identifier; the body carries the
	// image bytes themselves.
	name := p.buildName(target)
	stored, err := p.uploader.UploadPhotos(ctx, p.jobID, []backend.PhotoUpload{{
		ClientDeviceID: target.DeviceID,
		Name:           name,
		Photo:          base64.StdEncoding.EncodeToString(data),
		PhotoType:      target.Purpose,
	}})
	if err != nil {
		// Only this item is marked failed; re-triggering the capture starts
		// it over from capturing.
		p.setStatus(target, types.CaptureFailed, uri, "")
		p.logger.Warn("Capture upload failed",
			zap.String("device_id", target.DeviceID),
			zap.String("purpose", string(target.Purpose)),
			zap.Error(err))
		return nil, fmt.Errorf("upload failed for %s/%s: %w", target.DeviceID, target.Purpose, err)
	}

	serverName := name
	if len(stored) > 0 && stored[0].Name != "" {
		serverName = stored[0].Name
	}

	item := p.setStatus(target, types.CaptureDone, uri, serverName)

	p.logger.Info("Capture uploaded",
		zap.String("device_id", target.DeviceID),
		zap.String("purpose", string(target.Purpose)),
		zap.String("server_name", serverName))

	return item, nil
}

// buildName combines job, device, purpose, a timestamp and a random suffix
// so concurrent uploads from different technicians cannot collide.
func (p *Pipeline) buildName(target Target) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s_%s_%s_%d_%s",
		p.jobID, target.DeviceID, target.Purpose, time.Now().UnixMilli(), suffix)
}

func (p *Pipeline) setStatus(target Target, status types.CaptureStatus, uri, serverName string) *types.CaptureItem {
	p.mu.Lock()
	item, ok := p.items[target]
	if !ok {
		item = &types.CaptureItem{DeviceID: target.DeviceID, Purpose: target.Purpose}
		p.items[target] = item
	}
	item.Status = status
	item.LocalURI = uri
	item.ServerName = serverName
	snapshot := *item
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(snapshot)
	}
	return &snapshot
}

// Item returns the tracked state for one target.
func (p *Pipeline) Item(deviceID string, purpose types.CapturePurpose) (types.CaptureItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[Target{DeviceID: deviceID, Purpose: purpose}]
	if !ok {
		return types.CaptureItem{}, false
	}
	return *item, true
}

// Items returns a snapshot of every tracked capture item.
func (p *Pipeline) Items() []types.CaptureItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.CaptureItem, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, *item)
	}
	return out
}

// HasUploadedInitial reports whether at least one device has an uploaded
// initial photo. Starting a job requires exactly that much.
func (p *Pipeline) HasUploadedInitial() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for target, item := range p.items {
		if target.Purpose == types.PurposeInitial && item.Uploaded() {
			return true
		}
	}
	return false
}

// MissingFinal lists the devices that still lack an uploaded final photo.
func (p *Pipeline) MissingFinal(deviceIDs []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var missing []string
	for _, id := range deviceIDs {
		item, ok := p.items[Target{DeviceID: id, Purpose: types.PurposeFinal}]
		if !ok || !item.Uploaded() {
			missing = append(missing, id)
		}
	}
	return missing
}

// SignatureName returns the uploaded signature's server-assigned name.
func (p *Pipeline) SignatureName() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[Target{DeviceID: SignatureDeviceID, Purpose: types.PurposeSignature}]
	if !ok || !item.Uploaded() {
		return "", false
	}
	return item.ServerName, true
}

// FinalPhotos builds the per-device final photo references for the finalize
// call. Each entry points at an already-uploaded photo by its server name.
func (p *Pipeline) FinalPhotos(deviceIDs []string) []backend.StoredPhoto {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]backend.StoredPhoto, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		item, ok := p.items[Target{DeviceID: id, Purpose: types.PurposeFinal}]
		if ok && item.Uploaded() {
			out = append(out, backend.StoredPhoto{
				ClientDeviceID: id,
				Name:           item.ServerName,
				PhotoType:      types.PurposeFinal,
			})
		}
	}
	return out
}

// Restore seeds the item map with captures that already carry server names,
// typically journaled uploads from before an agent restart.
func (p *Pipeline) Restore(items []types.CaptureItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range items {
		if item.ServerName == "" {
			continue
		}
		target := Target{DeviceID: item.DeviceID, Purpose: item.Purpose}
		p.items[target] = &types.CaptureItem{
			DeviceID:   item.DeviceID,
			Purpose:    item.Purpose,
			ServerName: item.ServerName,
			Status:     types.CaptureDone,
		}
	}
}

// Release drops transient local references once the job's phase completes
// or is abandoned. Server names are kept.
func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.items {
		item.LocalURI = ""
	}
}
