package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/config"
	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.BackendConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestIndexSet_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    IndexSet
		wantErr bool
	}{
		{"array", `[0, 2, 5]`, IndexSet{0, 2, 5}, false},
		{"csv string", `"0,2,5"`, IndexSet{0, 2, 5}, false},
		{"csv with spaces", `"0, 2, 5"`, IndexSet{0, 2, 5}, false},
		{"empty string", `""`, IndexSet{}, false},
		{"null", `null`, nil, false},
		{"garbage string", `"0,two,5"`, nil, true},
		{"object", `{"a":1}`, nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got IndexSet
			err := json.Unmarshal([]byte(tc.payload), &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClient_JobDecodesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/technicianMaintenances/job-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {
				"id": "job-1",
				"status": "in_progress",
				"total_paused_duration": 600000,
				"devices": [{"client_device_id": "dev-a", "device_type": "split_ac"}]
			}
		}`))
	})

	job, err := client.Job(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, types.JobInProgress, job.Status)
	assert.Equal(t, int64(600000), job.TotalPausedDuration)
	require.Len(t, job.Devices, 1)
	assert.Equal(t, "dev-a", job.Devices[0].DeviceID)
}

func TestClient_RejectionBecomesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": false, "message": "maintenance already finalized"}`))
	})

	_, err := client.Start(context.Background(), "job-1", types.Coordinates{})
	require.Error(t, err)

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "maintenance already finalized", apiErr.Message)
}

func TestClient_ProgressParsesLegacyCSVIndices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {"devices": [
				{"client_device_id": "dev-a", "completed_indices": "0,2,5", "progress_total": 9},
				{"client_device_id": "dev-b", "completed_indices": [1], "progress_total": 5}
			]}
		}`))
	})

	report, err := client.Progress(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, report.Devices, 2)
	assert.Equal(t, IndexSet{0, 2, 5}, report.Devices[0].CompletedIndices)
	assert.Equal(t, IndexSet{1}, report.Devices[1].CompletedIndices)
}

func TestClient_ReplaceProgressSendsFullSnapshot(t *testing.T) {
	var body progressBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/technicianMaintenances/job-1/progress", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true}`))
	})

	devices := []types.ChecklistProgress{
		{DeviceID: "dev-a", CompletedIndices: []int{0, 2, 5}, ItemsTotal: 9},
		{DeviceID: "dev-b", CompletedIndices: []int{1}, ItemsTotal: 5},
	}
	require.NoError(t, client.ReplaceProgress(context.Background(), "job-1", devices))
	assert.Equal(t, devices, body.Devices)
}

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	t.Setenv("FIELDOPS_TOKEN", "opaque-session-token")
	client, err := NewClient(config.BackendConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Job(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer opaque-session-token", gotAuth)
}

func TestClient_ExpiredTokenFailsBeforeNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	// header {"alg":"none"} . {"exp":1000000000} . empty signature
	expired := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." +
		"eyJleHAiOjEwMDAwMDAwMDB9."

	t.Setenv("FIELDOPS_TOKEN", expired)
	client, err := NewClient(config.BackendConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Job(context.Background(), "job-1")
	require.ErrorIs(t, err, types.ErrSessionExpired)
	assert.False(t, called)
}

func TestClient_TransitionCarriesCoordinates(t *testing.T) {
	var body coordinatesBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/technicianMaintenances/job-1/pause", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Write([]byte(`{"success": true, "data": {"total_paused_duration": 1000}}`))
	})

	result, err := client.Pause(context.Background(), "job-1",
		types.Coordinates{Latitude: -23.55, Longitude: -46.63}, "lunch break")
	require.NoError(t, err)

	assert.Equal(t, -23.55, body.Latitude)
	assert.Equal(t, -46.63, body.Longitude)
	assert.Equal(t, "lunch break", body.PauseReason)
	assert.Equal(t, int64(1000), result.TotalPausedDuration)
}

func TestClient_UploadPhotosReturnsStoredNames(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/technicianMaintenances/job-1/photos", r.URL.Path)
		w.Write([]byte(`{
			"success": true,
			"data": {"photos": [
				{"client_device_id": "dev-a", "name": "stored_dev-a.jpg", "photo_type": "initial"}
			]}
		}`))
	})

	stored, err := client.UploadPhotos(context.Background(), "job-1", []PhotoUpload{
		{
			ClientDeviceID: "dev-a",
			Name:           "job-1_dev-a_initial_1_x",
			Photo:          "aW1hZ2UtYnl0ZXM=",
			PhotoType:      types.PurposeInitial,
		},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "stored_dev-a.jpg", stored[0].Name)
}
