package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/models"
)

var (
	// ErrNotFound 设备不存在（注册之外的操作使用）
	ErrNotFound = errors.New("device not found")
)

// Transition 一次记录变更的前后快照
type Transition struct {
	Prev    models.DeviceRecord
	Next    models.DeviceRecord
	Created bool
	// StaleIgnored 上报时间戳早于 last_seen_at，状态字段未被应用
	StaleIgnored bool
}

// EvalFunc 在设备锁内执行的报警评估函数。
// 必须是纯函数（只读 Transition，不做任何 I/O）——锁不允许跨网络调用持有。
type EvalFunc func(t Transition) []models.AlertEvent

// DeviceStore 设备记录存储。
// 读操作（快照/列表）可并发；同一设备的 应用上报→评估报警→记录冷却 序列
// 在该设备的锁内完成，保证 last_seen_at 单调且活性扫描与实时上报不会互相丢失更新。
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*deviceEntry
	logger  *zap.Logger
}

type deviceEntry struct {
	mu  sync.Mutex
	rec models.DeviceRecord
}

// NewDeviceStore 创建设备存储
func NewDeviceStore(logger *zap.Logger) *DeviceStore {
	return &DeviceStore{
		devices: make(map[string]*deviceEntry),
		logger:  logger,
	}
}

// entry 查找设备条目；allowCreate 时不存在则创建
func (s *DeviceStore) entry(deviceID string, allowCreate bool) (*deviceEntry, bool, error) {
	s.mu.RLock()
	e, ok := s.devices[deviceID]
	s.mu.RUnlock()
	if ok {
		return e, false, nil
	}
	if !allowCreate {
		return nil, false, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 双重检查：并发注册同一设备只创建一条记录
	if e, ok := s.devices[deviceID]; ok {
		return e, false, nil
	}
	e = &deviceEntry{}
	s.devices[deviceID] = e
	return e, true, nil
}

// Upsert 应用一次上报并在同一临界区内评估报警。
// 返回变更前后快照与评估产生的事件；事件的冷却状态在解锁前写回记录。
// allowCreate 仅注册路径为 true；未知设备的普通上报返回 ErrNotFound。
func (s *DeviceStore) Upsert(deviceID string, report models.Report, allowCreate bool, eval EvalFunc) (Transition, []models.AlertEvent, error) {
	e, created, err := s.entry(deviceID, allowCreate)
	if err != nil {
		return Transition{}, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 条目刚创建但还未初始化（并发下另一个注册可能先拿到了条目）。
	// 普通上报不允许接管未初始化的条目——注册才有 owner_email。
	if e.rec.DeviceID == "" {
		if !allowCreate {
			return Transition{}, nil, ErrNotFound
		}
		created = true
	}

	t := Transition{Prev: e.rec.Clone(), Created: created}

	ts := report.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if !created && ts.Before(e.rec.LastSeenAt) {
		// 乱序到达的旧上报：接受请求但不应用状态字段
		t.StaleIgnored = true
		t.Next = t.Prev
		s.logger.Info("Stale report ignored",
			zap.String("device_id", deviceID),
			zap.Time("report_ts", ts),
			zap.Time("last_seen_at", e.rec.LastSeenAt),
		)
		return t, nil, nil
	}

	if created {
		e.rec.DeviceID = deviceID
		e.rec.OwnerEmail = report.OwnerEmail
		e.rec.RegisteredAt = ts
	}
	applyReport(&e.rec, report, ts)
	// 任何被接受的上报都会重置活性时钟并把设备拉回在线
	e.rec.IsOnline = true
	e.rec.LastSeenAt = ts

	t.Next = e.rec.Clone()

	var events []models.AlertEvent
	if eval != nil {
		events = eval(t)
		s.stampAlertsLocked(e, events)
		t.Next = e.rec.Clone()
	}
	return t, events, nil
}

// applyReport 应用部分上报的字段（缺省字段保持原值）
func applyReport(rec *models.DeviceRecord, report models.Report, ts time.Time) {
	if report.OwnerEmail != "" {
		rec.OwnerEmail = report.OwnerEmail
	}
	if report.DeviceName != "" {
		rec.DeviceName = report.DeviceName
	}
	if report.Manufacturer != "" {
		rec.Manufacturer = report.Manufacturer
	}
	if report.Model != "" {
		rec.Model = report.Model
	}
	if report.OSName != "" {
		rec.OSName = report.OSName
	}
	if report.OSVersion != "" {
		rec.OSVersion = report.OSVersion
	}
	if report.BatteryLevel != nil {
		lvl := *report.BatteryLevel
		rec.BatteryLevel = &lvl
	}
	if report.IsCharging != nil {
		ch := *report.IsCharging
		rec.IsCharging = &ch
	}
	if report.Latitude != nil && report.Longitude != nil {
		rec.Location = &models.Location{
			Latitude:  *report.Latitude,
			Longitude: *report.Longitude,
			Address:   report.Address,
			Source:    report.LocationSource,
			Timestamp: ts,
		}
	}
}

// stampAlertsLocked 按类别记录报警时间（调用方必须持有设备锁）
func (s *DeviceStore) stampAlertsLocked(e *deviceEntry, events []models.AlertEvent) {
	if len(events) == 0 {
		return
	}
	if e.rec.LastAlertState == nil {
		e.rec.LastAlertState = make(map[models.AlertCategory]models.AlertStamp)
	}
	for _, ev := range events {
		e.rec.LastAlertState[ev.Category] = models.AlertStamp{
			Kind:      ev.Kind,
			EmittedAt: ev.EmittedAt,
		}
	}
}

// Reclassify 活性扫描专用：根据 last_seen_at 的时间差重新判定在线/离线
// 并评估连接性报警。不修改 last_seen_at。
// 判定在设备锁内完成：判定与应用之间被接受的上报会推进 last_seen_at，
// 扫描不能用过期的判定覆盖它。状态未变化时返回的 Transition 前后快照相同。
func (s *DeviceStore) Reclassify(deviceID string, now time.Time, staleThreshold time.Duration, eval EvalFunc) (Transition, []models.AlertEvent, error) {
	e, _, err := s.entry(deviceID, false)
	if err != nil {
		return Transition{}, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	online := now.Sub(e.rec.LastSeenAt) < staleThreshold
	t := Transition{Prev: e.rec.Clone()}
	if e.rec.IsOnline == online {
		t.Next = t.Prev
		return t, nil, nil
	}

	e.rec.IsOnline = online
	t.Next = e.rec.Clone()

	var events []models.AlertEvent
	if eval != nil {
		events = eval(t)
		s.stampAlertsLocked(e, events)
		t.Next = e.rec.Clone()
	}
	return t, events, nil
}

// SetStolen 显式的失窃标记操作（owner/admin 动作，遥测永远不走这条路径）
func (s *DeviceStore) SetStolen(deviceID string, stolen bool) (Transition, error) {
	e, _, err := s.entry(deviceID, false)
	if err != nil {
		return Transition{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := Transition{Prev: e.rec.Clone()}
	e.rec.IsStolen = stolen
	t.Next = e.rec.Clone()
	return t, nil
}

// Get 查询单个设备快照
func (s *DeviceStore) Get(deviceID string) (models.DeviceRecord, error) {
	e, _, err := s.entry(deviceID, false)
	if err != nil {
		return models.DeviceRecord{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// Remove 删除设备记录（仅显式的 owner 操作，长期静默不会触发删除）
func (s *DeviceStore) Remove(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return ErrNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

// Seed 启动时从持久化存储恢复记录（单线程启动阶段调用）
func (s *DeviceStore) Seed(rec models.DeviceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[rec.DeviceID] = &deviceEntry{rec: rec.Clone()}
}

// DeviceIDs 返回当前全部设备ID（扫描用，避免迭代期间持有全局锁）
func (s *DeviceStore) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListByOwner 按 owner 列出设备快照
func (s *DeviceStore) ListByOwner(ownerEmail string) []models.DeviceRecord {
	return s.list(func(rec *models.DeviceRecord) bool {
		return rec.OwnerEmail == ownerEmail
	})
}

// ListAll 列出全部设备快照
func (s *DeviceStore) ListAll() []models.DeviceRecord {
	return s.list(nil)
}

func (s *DeviceStore) list(filter func(*models.DeviceRecord) bool) []models.DeviceRecord {
	ids := s.DeviceIDs()
	out := make([]models.DeviceRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(id)
		if err != nil {
			continue
		}
		if filter != nil && !filter(&rec) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Stats 生成监控统计快照
func (s *DeviceStore) Stats(batteryThreshold int) models.MonitoringStats {
	stats := models.MonitoringStats{GeneratedAt: time.Now()}
	for _, rec := range s.ListAll() {
		stats.TotalDevices++
		if rec.IsOnline {
			stats.OnlineDevices++
		} else {
			stats.OfflineDevices++
		}
		if rec.IsStolen {
			stats.StolenDevices++
		}
		if rec.BatteryLevel != nil && *rec.BatteryLevel < batteryThreshold {
			stats.LowBattery++
		}
	}
	return stats
}
