package models

import (
	"time"
)

// Location 设备最近一次上报的位置
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Address   string    `json:"address,omitempty"`
	// 位置来源（gps / wifi / ip），由客户端上报，服务端不做验证
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertStamp 某一类别最近一次报警的记录（用于去重冷却）
type AlertStamp struct {
	Kind      AlertKind `json:"kind"`
	EmittedAt time.Time `json:"emitted_at"`
}

// DeviceRecord 设备记录（每个设备标识一条）
type DeviceRecord struct {
	DeviceID     string `json:"device_id"`
	OwnerEmail   string `json:"owner_email"`
	DeviceName   string `json:"device_name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	OSName       string `json:"os_name,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`

	Location     *Location `json:"location,omitempty"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	IsCharging   *bool     `json:"is_charging,omitempty"`

	// IsOnline 只能由活性扫描或"重新上线"路径修改，上报数据本身不直接写入
	IsOnline bool `json:"is_online"`
	// IsStolen 只能由显式的 stolen/found 操作修改，遥测数据永远不会清除它
	IsStolen bool `json:"is_stolen"`

	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`

	// 按类别记录最近一次报警（battery / connectivity / theft）
	LastAlertState map[AlertCategory]AlertStamp `json:"last_alert_state,omitempty"`
}

// Clone 深拷贝记录（店外传递的快照不允许与店内共享可变状态）
func (r DeviceRecord) Clone() DeviceRecord {
	out := r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.BatteryLevel != nil {
		lvl := *r.BatteryLevel
		out.BatteryLevel = &lvl
	}
	if r.IsCharging != nil {
		ch := *r.IsCharging
		out.IsCharging = &ch
	}
	if r.LastAlertState != nil {
		m := make(map[AlertCategory]AlertStamp, len(r.LastAlertState))
		for k, v := range r.LastAlertState {
			m[k] = v
		}
		out.LastAlertState = m
	}
	return out
}

// Report 一次注册/心跳上报（浏览器端遥测天然不完整，所有字段可选）
type Report struct {
	OwnerEmail   string `json:"owner_email,omitempty"`
	DeviceName   string `json:"device_name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	OSName       string `json:"os_name,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`

	BatteryLevel *int     `json:"battery_level,omitempty"`
	IsCharging   *bool    `json:"is_charging,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Address      string   `json:"address,omitempty"`
	LocationSource string `json:"location_source,omitempty"`

	// 客户端时间戳，缺省为服务端接收时间
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// MonitoringStats 监控统计快照（用于仪表盘）
type MonitoringStats struct {
	TotalDevices   int       `json:"total_devices"`
	OnlineDevices  int       `json:"online_devices"`
	OfflineDevices int       `json:"offline_devices"`
	StolenDevices  int       `json:"stolen_devices"`
	LowBattery     int       `json:"low_battery"`
	GeneratedAt    time.Time `json:"generated_at"`
}
