package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/models"
)

// DeviceExportHeader 导出表头
var DeviceExportHeader = []string{
	"Device ID",
	"Owner Email",
	"Device Name",
	"Manufacturer",
	"Model",
	"OS",
	"Battery",
	"Charging",
	"Online",
	"Stolen",
	"Last Seen",
	"Last Address",
}

// Export GET /api/devices/export?owner=
// 生成设备清单 Excel 报表
func (h *DeviceHandler) Export(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")

	var devices []models.DeviceRecord
	if owner != "" {
		devices = h.store.ListByOwner(owner)
	} else {
		devices = h.store.ListAll()
	}

	data, err := generateDeviceExport(devices)
	if err != nil {
		h.logger.Error("Failed to generate device export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("devices-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	_, _ = w.Write(data)
}

// generateDeviceExport 生成设备清单 Excel 文件
func generateDeviceExport(devices []models.DeviceRecord) ([]byte, error) {
	f := excelize.NewFile()
	// 注意：这里不能 defer Close()，WriteToBuffer 需要文件保持打开

	sheetName := "Devices"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	for i, header := range DeviceExportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell: %w", err)
		}
	}

	for row, rec := range devices {
		values := []any{
			rec.DeviceID,
			rec.OwnerEmail,
			rec.DeviceName,
			rec.Manufacturer,
			rec.Model,
			osLabel(rec),
			batteryLabel(rec),
			boolLabel(rec.IsCharging),
			rec.IsOnline,
			rec.IsStolen,
			rec.LastSeenAt.Format(time.RFC3339),
			addressLabel(rec),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, fmt.Errorf("failed to build data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set data cell: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write excel buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func osLabel(rec models.DeviceRecord) string {
	if rec.OSName == "" {
		return ""
	}
	if rec.OSVersion == "" {
		return rec.OSName
	}
	return rec.OSName + " " + rec.OSVersion
}

func batteryLabel(rec models.DeviceRecord) string {
	if rec.BatteryLevel == nil {
		return ""
	}
	return fmt.Sprintf("%d%%", *rec.BatteryLevel)
}

func boolLabel(b *bool) string {
	if b == nil {
		return ""
	}
	if *b {
		return "yes"
	}
	return "no"
}

func addressLabel(rec models.DeviceRecord) string {
	if rec.Location == nil {
		return ""
	}
	return rec.Location.Address
}
