package evaluator

import (
	"time"

	"github.com/google/uuid"

	"github.com/Jithendra123892/LAPSO/internal/models"
)

// buildEvent 构建报警事件
func buildEvent(kind models.AlertKind, rec models.DeviceRecord, message string, now time.Time) models.AlertEvent {
	return models.AlertEvent{
		EventID:    uuid.New().String(),
		Kind:       kind,
		Category:   kind.Category(),
		DeviceID:   rec.DeviceID,
		OwnerEmail: rec.OwnerEmail,
		DeviceName: rec.DeviceName,
		Message:    message,
		EmittedAt:  now,
	}
}
