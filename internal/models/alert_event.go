package models

import (
	"time"
)

// AlertKind 报警类型（避免散落在代码里的裸字符串）
type AlertKind string

const (
	AlertLowBattery    AlertKind = "low_battery"
	AlertDeviceOffline AlertKind = "device_offline"
	AlertDeviceOnline  AlertKind = "device_online"
	AlertTheft         AlertKind = "theft_alert"
)

// AlertCategory 报警类别（去重冷却按类别+类型计算）
type AlertCategory string

const (
	CategoryBattery      AlertCategory = "battery"
	CategoryConnectivity AlertCategory = "connectivity"
	CategoryTheft        AlertCategory = "theft"
)

// Category 返回报警类型所属的类别
func (k AlertKind) Category() AlertCategory {
	switch k {
	case AlertLowBattery:
		return CategoryBattery
	case AlertDeviceOffline, AlertDeviceOnline:
		return CategoryConnectivity
	case AlertTheft:
		return CategoryTheft
	}
	return ""
}

// AlertEvent 报警事件（发布到 alerts.<owner_email> 主题）
type AlertEvent struct {
	EventID      string    `json:"event_id"`
	Kind         AlertKind `json:"type"`
	Category     AlertCategory `json:"category"`
	DeviceID     string    `json:"device_id"`
	OwnerEmail   string    `json:"owner_email"`
	DeviceName   string    `json:"device_name,omitempty"`
	Message      string    `json:"message"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	EmittedAt    time.Time `json:"emitted_at"`
}

// DeviceUpdate 设备快照事件（发布到 device-updates 广播主题）
type DeviceUpdate struct {
	Device    DeviceRecord `json:"device"`
	UpdatedAt time.Time    `json:"updated_at"`
}
