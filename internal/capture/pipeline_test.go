package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/backend"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSource struct {
	dir         string
	captureFunc func(ctx context.Context, target Target) (string, error)
	calls       []Target
}

// Capture writes a deterministic image file per target, standing in for the
// camera or signature pad.
func (m *mockSource) Capture(ctx context.Context, target Target) (string, error) {
	m.calls = append(m.calls, target)
	if m.captureFunc != nil {
		return m.captureFunc(ctx, target)
	}
	path := filepath.Join(m.dir, fmt.Sprintf("%s_%s.jpg", target.DeviceID, target.Purpose))
	if err := os.WriteFile(path, []byte("image-bytes-"+target.DeviceID), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type mockUploader struct {
	uploadFunc func(ctx context.Context, jobID string, photos []backend.PhotoUpload) ([]backend.StoredPhoto, error)
	calls      [][]backend.PhotoUpload
}

func (m *mockUploader) UploadPhotos(ctx context.Context, jobID string, photos []backend.PhotoUpload) ([]backend.StoredPhoto, error) {
	m.calls = append(m.calls, photos)
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, jobID, photos)
	}
	out := make([]backend.StoredPhoto, 0, len(photos))
	for _, p := range photos {
		out = append(out, backend.StoredPhoto{
			ClientDeviceID: p.ClientDeviceID,
			Name:           p.Name,
			PhotoType:      p.PhotoType,
		})
	}
	return out, nil
}

func newTestSource(t *testing.T) *mockSource {
	t.Helper()
	return &mockSource{dir: t.TempDir()}
}

func newPipeline(source Source, uploader Uploader) *Pipeline {
	return NewPipeline("job-1", source, uploader, zap.NewNop())
}

func TestCapture_UploadsAndTracksItem(t *testing.T) {
	source := newTestSource(t)
	uploader := &mockUploader{}
	p := newPipeline(source, uploader)

	item, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, types.CaptureDone, item.Status)
	assert.NotEmpty(t, item.ServerName)
	assert.True(t, item.Uploaded())
	assert.True(t, p.HasUploadedInitial())

	require.Len(t, uploader.calls, 1)
	require.Len(t, uploader.calls[0], 1)
	assert.Equal(t, "dev-a", uploader.calls[0][0].ClientDeviceID)
	assert.Equal(t, types.PurposeInitial, uploader.calls[0][0].PhotoType)
}

func TestCapture_UploadCarriesImageBytes(t *testing.T) {
	content := []byte("raw-jpeg-bytes-of-the-captured-photo")
	path := filepath.Join(t.TempDir(), "dev-a_initial.jpg")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	source := &mockSource{
		captureFunc: func(context.Context, Target) (string, error) { return path, nil },
	}
	uploader := &mockUploader{}
	p := newPipeline(source, uploader)

	_, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.NoError(t, err)

	require.Len(t, uploader.calls, 1)
	sent := uploader.calls[0][0]

	decoded, err := base64.StdEncoding.DecodeString(sent.Photo)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)

	// The client identifier travels separately from the image body.
	assert.NotEmpty(t, sent.Name)
	assert.NotEqual(t, sent.Name, sent.Photo)
	assert.NotContains(t, sent.Name, path)
}

func TestCapture_NameCarriesJobDeviceAndPurpose(t *testing.T) {
	uploader := &mockUploader{}
	p := newPipeline(newTestSource(t), uploader)

	before := time.Now().UnixMilli()
	_, err := p.Capture(context.Background(), "dev-a", types.PurposeFinal)
	require.NoError(t, err)

	name := uploader.calls[0][0].Name
	parts := strings.Split(name, "_")
	require.Len(t, parts, 5)
	assert.Equal(t, "job-1", parts[0])
	assert.Equal(t, "dev-a", parts[1])
	assert.Equal(t, "final", parts[2])
	assert.NotEmpty(t, parts[4])

	var ts int64
	_, err = fmt.Sscanf(parts[3], "%d", &ts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, before)
}

func TestCapture_CancelledReturnsSentinel(t *testing.T) {
	source := &mockSource{
		captureFunc: func(context.Context, Target) (string, error) { return "", nil },
	}
	uploader := &mockUploader{}
	p := newPipeline(source, uploader)

	item, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.ErrorIs(t, err, types.ErrCaptureCancelled)
	assert.Nil(t, item)

	assert.Empty(t, uploader.calls)
	assert.False(t, p.HasUploadedInitial())

	tracked, ok := p.Item("dev-a", types.PurposeInitial)
	require.True(t, ok)
	assert.Equal(t, types.CaptureIdle, tracked.Status)
}

func TestCapture_UploadFailureMarksItemFailed(t *testing.T) {
	source := newTestSource(t)
	uploader := &mockUploader{}
	p := newPipeline(source, uploader)

	// First photo succeeds.
	_, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.NoError(t, err)

	// Second one fails at upload.
	uploader.uploadFunc = func(context.Context, string, []backend.PhotoUpload) ([]backend.StoredPhoto, error) {
		return nil, errors.New("network down")
	}
	_, err = p.Capture(context.Background(), "dev-b", types.PurposeInitial)
	require.Error(t, err)

	failed, ok := p.Item("dev-b", types.PurposeInitial)
	require.True(t, ok)
	assert.Equal(t, types.CaptureFailed, failed.Status)
	assert.Empty(t, failed.ServerName)
	assert.False(t, failed.Uploaded())

	kept, ok := p.Item("dev-a", types.PurposeInitial)
	require.True(t, ok)
	assert.True(t, kept.Uploaded())

	// Re-triggering the capture retries from the failed state.
	uploader.uploadFunc = nil
	item, err := p.Capture(context.Background(), "dev-b", types.PurposeInitial)
	require.NoError(t, err)
	assert.True(t, item.Uploaded())
}

func TestCapture_UnreadableFileMarksItemFailed(t *testing.T) {
	source := &mockSource{
		captureFunc: func(context.Context, Target) (string, error) {
			return filepath.Join(t.TempDir(), "missing.jpg"), nil
		},
	}
	uploader := &mockUploader{}
	p := newPipeline(source, uploader)

	_, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.Error(t, err)
	assert.Empty(t, uploader.calls)

	item, ok := p.Item("dev-a", types.PurposeInitial)
	require.True(t, ok)
	assert.Equal(t, types.CaptureFailed, item.Status)
}

func TestCapture_RejectsSignaturePurpose(t *testing.T) {
	p := newPipeline(newTestSource(t), &mockUploader{})

	_, err := p.Capture(context.Background(), "dev-a", types.PurposeSignature)
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestCaptureSignature_RequiresSignerFields(t *testing.T) {
	source := newTestSource(t)
	p := newPipeline(source, &mockUploader{})

	_, err := p.CaptureSignature(context.Background(), "", "12345")
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	_, err = p.CaptureSignature(context.Background(), "Maria Silva", "  ")
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))

	assert.Empty(t, source.calls)
}

func TestCaptureSignature_UploadsUnderSignatureKey(t *testing.T) {
	p := newPipeline(newTestSource(t), &mockUploader{})

	item, err := p.CaptureSignature(context.Background(), "Maria Silva", "12345")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, SignatureDeviceID, item.DeviceID)

	name, ok := p.SignatureName()
	require.True(t, ok)
	assert.Equal(t, item.ServerName, name)
}

func TestMissingFinal(t *testing.T) {
	p := newPipeline(newTestSource(t), &mockUploader{})
	deviceIDs := []string{"dev-a", "dev-b"}

	assert.Equal(t, deviceIDs, p.MissingFinal(deviceIDs))

	_, err := p.Capture(context.Background(), "dev-a", types.PurposeFinal)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-b"}, p.MissingFinal(deviceIDs))

	_, err = p.Capture(context.Background(), "dev-b", types.PurposeFinal)
	require.NoError(t, err)
	assert.Empty(t, p.MissingFinal(deviceIDs))

	photos := p.FinalPhotos(deviceIDs)
	require.Len(t, photos, 2)
	assert.Equal(t, "dev-a", photos[0].ClientDeviceID)
	assert.NotEmpty(t, photos[0].Name)
	assert.Equal(t, types.PurposeFinal, photos[0].PhotoType)
}

func TestRestore_SeedsUploadedItemsOnly(t *testing.T) {
	p := newPipeline(newTestSource(t), &mockUploader{})

	p.Restore([]types.CaptureItem{
		{DeviceID: "dev-a", Purpose: types.PurposeInitial, ServerName: "job-1_dev-a_initial_1_x"},
		{DeviceID: "dev-b", Purpose: types.PurposeInitial}, // never uploaded
	})

	assert.True(t, p.HasUploadedInitial())
	_, ok := p.Item("dev-b", types.PurposeInitial)
	assert.False(t, ok)
}

func TestOnChange_ReportsStatusTransitions(t *testing.T) {
	p := newPipeline(newTestSource(t), &mockUploader{})

	var statuses []types.CaptureStatus
	p.SetOnChange(func(item types.CaptureItem) {
		statuses = append(statuses, item.Status)
	})

	_, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.NoError(t, err)

	assert.Equal(t, []types.CaptureStatus{
		types.CaptureCapturing,
		types.CaptureUploading,
		types.CaptureDone,
	}, statuses)
}

func TestRelease_DropsLocalURIsKeepsServerNames(t *testing.T) {
	p := newPipeline(newTestSource(t), &mockUploader{})

	_, err := p.Capture(context.Background(), "dev-a", types.PurposeInitial)
	require.NoError(t, err)

	p.Release()

	item, ok := p.Item("dev-a", types.PurposeInitial)
	require.True(t, ok)
	assert.Empty(t, item.LocalURI)
	assert.NotEmpty(t, item.ServerName)
	assert.True(t, p.HasUploadedInitial())
}
