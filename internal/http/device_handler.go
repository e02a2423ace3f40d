package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/ingest"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

// DeviceHandler 设备采集/查询 Handler
type DeviceHandler struct {
	pipeline         *ingest.Pipeline
	store            *store.DeviceStore
	batteryThreshold int
	logger           *zap.Logger
}

// NewDeviceHandler 创建设备 Handler
func NewDeviceHandler(pipeline *ingest.Pipeline, deviceStore *store.DeviceStore, batteryThreshold int, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		pipeline:         pipeline,
		store:            deviceStore,
		batteryThreshold: batteryThreshold,
		logger:           logger,
	}
}

// reportRequest 浏览器端上报的请求体（客户端脚本用 camelCase）
type reportRequest struct {
	DeviceID       string   `json:"deviceId"`
	OwnerEmail     string   `json:"ownerEmail"`
	DeviceName     string   `json:"deviceName"`
	Manufacturer   string   `json:"manufacturer"`
	Model          string   `json:"model"`
	OSName         string   `json:"osName"`
	OSVersion      string   `json:"osVersion"`
	BatteryLevel   *int     `json:"batteryLevel"`
	IsCharging     *bool    `json:"isCharging"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Address        string   `json:"address"`
	LocationSource string   `json:"locationSource"`
	// 客户端时间戳（epoch 毫秒，Date.now()），缺省为服务端时间
	Timestamp *int64 `json:"timestamp"`
}

func (r *reportRequest) toReport() models.Report {
	report := models.Report{
		OwnerEmail:     r.OwnerEmail,
		DeviceName:     r.DeviceName,
		Manufacturer:   r.Manufacturer,
		Model:          r.Model,
		OSName:         r.OSName,
		OSVersion:      r.OSVersion,
		BatteryLevel:   r.BatteryLevel,
		IsCharging:     r.IsCharging,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Address:        r.Address,
		LocationSource: r.LocationSource,
	}
	if r.Timestamp != nil {
		report.Timestamp = time.UnixMilli(*r.Timestamp)
	}
	return report
}

// Register POST /api/devices/register
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	result, err := h.pipeline.Register(r.Context(), req.DeviceID, req.toReport())
	h.writeResult(w, result, err)
}

// Update POST /api/devices/update（兼容 /api/device/update）
func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	result, err := h.pipeline.Update(r.Context(), req.DeviceID, req.toReport())
	h.writeResult(w, result, err)
}

// Heartbeat POST /api/devices/{id}/heartbeat（设备ID在路径里的上报变体）
func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req reportRequest
	// 心跳允许空请求体（纯存活信号）
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}

	result, err := h.pipeline.Update(r.Context(), deviceID, req.toReport())
	h.writeResult(w, result, err)
}

// MarkStolen POST /api/devices/{id}/stolen
func (h *DeviceHandler) MarkStolen(w http.ResponseWriter, r *http.Request, deviceID string) {
	result, err := h.pipeline.MarkStolen(r.Context(), deviceID)
	h.writeResult(w, result, err)
}

// MarkFound POST /api/devices/{id}/found
func (h *DeviceHandler) MarkFound(w http.ResponseWriter, r *http.Request, deviceID string) {
	result, err := h.pipeline.MarkFound(r.Context(), deviceID)
	h.writeResult(w, result, err)
}

// Remove DELETE /api/devices/{id}
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request, deviceID string) {
	result, err := h.pipeline.Remove(r.Context(), deviceID)
	h.writeResult(w, result, err)
}

// GetDevice GET /api/devices/{id}
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	rec, err := h.store.Get(deviceID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail("device not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Realtime GET /api/devices/realtime?owner=
// 全量（或按 owner 过滤的）设备快照，供仪表盘重连后重新拉取
func (h *DeviceHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	var devices []models.DeviceRecord
	if owner != "" {
		devices = h.store.ListByOwner(owner)
	} else {
		devices = h.store.ListAll()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// MonitoringStats GET /api/location/monitoring-stats
func (h *DeviceHandler) MonitoringStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats(h.batteryThreshold))
}

// writeResult 把管道结果映射为 HTTP 应答
func (h *DeviceHandler) writeResult(w http.ResponseWriter, result ingest.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Result{Success: result.Success, Message: result.Message, Created: result.Created})
	case errors.Is(err, ingest.ErrValidation):
		writeJSON(w, http.StatusBadRequest, Fail(result.Message))
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail(result.Message))
	default:
		h.logger.Error("Ingestion request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(result.Message))
	}
}
