package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/evaluator"
	"github.com/Jithendra123892/LAPSO/internal/ingest"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

func newTestRouter(t *testing.T) (*Router, *store.DeviceStore) {
	t.Helper()
	logger := zap.NewNop()
	deviceStore := store.NewDeviceStore(logger)
	engine := evaluator.NewEngine(20, 5*time.Minute)
	pipeline := ingest.NewPipeline(deviceStore, engine, nil, nil, nil, logger)
	handler := NewDeviceHandler(pipeline, deviceStore, 20, logger)

	router := NewRouter(logger)
	router.RegisterDeviceRoutes(handler)
	return router, deviceStore
}

func doJSON(t *testing.T, router *Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) Result {
	t.Helper()
	var result Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestRegister(t *testing.T) {
	router, deviceStore := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/devices/register",
		`{"deviceId":"dev-1","ownerEmail":"owner@example.com","deviceName":"Laptop","batteryLevel":80}`)

	assert.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)
	assert.True(t, result.Success)
	assert.True(t, result.Created)

	rec, err := deviceStore.Get("dev-1")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", rec.OwnerEmail)
	assert.Equal(t, 80, *rec.BatteryLevel)
	assert.True(t, rec.IsOnline)
}

func TestRegister_MissingOwner(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/devices/register", `{"deviceId":"dev-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	result := decodeResult(t, w)
	assert.False(t, result.Success)
	assert.Equal(t, "owner_email is required", result.Message)
}

func TestRegister_InvalidJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/devices/register", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdate_UnknownDevice(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/devices/update", `{"deviceId":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	result := decodeResult(t, w)
	assert.False(t, result.Success)
}

func TestUpdate_LegacySingularPath(t *testing.T) {
	router, _ := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	w := doJSON(t, router, http.MethodPost, "/api/device/update", `{"deviceId":"dev-1","batteryLevel":55}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResult(t, w).Success)
}

func TestUpdate_StaleReportAcknowledged(t *testing.T) {
	router, deviceStore := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	stale := time.Now().Add(-time.Hour).UnixMilli()
	w := doJSON(t, router, http.MethodPost, "/api/devices/update",
		fmt.Sprintf(`{"deviceId":"dev-1","batteryLevel":1,"timestamp":%d}`, stale))

	assert.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)
	assert.True(t, result.Success)
	assert.Equal(t, "stale report ignored", result.Message)

	rec, err := deviceStore.Get("dev-1")
	require.NoError(t, err)
	assert.Nil(t, rec.BatteryLevel)
}

func TestHeartbeat_EmptyBody(t *testing.T) {
	router, _ := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	w := doJSON(t, router, http.MethodPost, "/api/devices/dev-1/heartbeat", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeResult(t, w).Success)
}

func TestStolenAndFound(t *testing.T) {
	router, deviceStore := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	w := doJSON(t, router, http.MethodPost, "/api/devices/dev-1/stolen", "")
	assert.Equal(t, http.StatusOK, w.Code)
	rec, err := deviceStore.Get("dev-1")
	require.NoError(t, err)
	assert.True(t, rec.IsStolen)

	w = doJSON(t, router, http.MethodPost, "/api/devices/dev-1/found", "")
	assert.Equal(t, http.StatusOK, w.Code)
	rec, err = deviceStore.Get("dev-1")
	require.NoError(t, err)
	assert.False(t, rec.IsStolen)
}

func TestStolen_UnknownDevice(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/devices/ghost/stolen", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAndDelete(t *testing.T) {
	router, _ := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	w := doJSON(t, router, http.MethodGet, "/api/devices/dev-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var rec models.DeviceRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "dev-1", rec.DeviceID)

	w = doJSON(t, router, http.MethodDelete, "/api/devices/dev-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/devices/dev-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRealtime_FilterByOwner(t *testing.T) {
	router, _ := newTestRouter(t)
	registerDeviceFor(t, router, "dev-1", "a@example.com")
	registerDeviceFor(t, router, "dev-2", "b@example.com")

	w := doJSON(t, router, http.MethodGet, "/api/devices/realtime?owner=a@example.com", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Devices []models.DeviceRecord `json:"devices"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Devices, 1)
	assert.Equal(t, "dev-1", resp.Devices[0].DeviceID)

	w = doJSON(t, router, http.MethodGet, "/api/devices/realtime", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestMonitoringStats(t *testing.T) {
	router, _ := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	w := doJSON(t, router, http.MethodGet, "/api/location/monitoring-stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var stats models.MonitoringStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalDevices)
	assert.Equal(t, 1, stats.OnlineDevices)
}

func TestExport(t *testing.T) {
	router, _ := newTestRouter(t)
	registerDevice(t, router, "dev-1")

	w := doJSON(t, router, http.MethodGet, "/api/devices/export", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		w.Header().Get("Content-Type"),
	)
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/devices/register", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/devices/dev-1/stolen", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestUnknownAction(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/devices/dev-1/launch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func registerDevice(t *testing.T, router *Router, deviceID string) {
	registerDeviceFor(t, router, deviceID, "owner@example.com")
}

func registerDeviceFor(t *testing.T, router *Router, deviceID, owner string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/devices/register",
		fmt.Sprintf(`{"deviceId":"%s","ownerEmail":"%s"}`, deviceID, owner))
	require.Equal(t, http.StatusOK, w.Code)
}
