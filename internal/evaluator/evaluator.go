package evaluator

import (
	"fmt"
	"time"

	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

// Engine 报警评估引擎。
// 纯粹的 (变更前状态, 变更后状态) -> 报警事件 函数，不做任何 I/O，
// 因此可以在设备锁内被 store 回调执行。
type Engine struct {
	batteryThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewEngine 创建评估引擎
// batteryThreshold: 低电量阈值（百分比）
// cooldown: 同一设备同类报警的去重冷却窗口
func NewEngine(batteryThreshold int, cooldown time.Duration) *Engine {
	return &Engine{
		batteryThreshold: batteryThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Evaluate 评估一次记录变更，返回零个或多个报警事件。
// 实现 store.EvalFunc。
func (e *Engine) Evaluate(t store.Transition) []models.AlertEvent {
	if t.StaleIgnored {
		return nil
	}

	var events []models.AlertEvent
	if ev := e.evaluateConnectivity(t); ev != nil {
		events = append(events, *ev)
	}
	if ev := e.evaluateBattery(t); ev != nil {
		events = append(events, *ev)
	}
	if ev := e.evaluateTheft(t); ev != nil {
		events = append(events, *ev)
	}
	return events
}

// evaluateConnectivity 在线/离线转换报警。
// 只在真正的状态转换上触发（活性扫描的 Reclassify 或上报把离线设备拉回在线）。
func (e *Engine) evaluateConnectivity(t store.Transition) *models.AlertEvent {
	// 首次注册不算"重新上线"
	if t.Created {
		return nil
	}
	switch {
	case !t.Prev.IsOnline && t.Next.IsOnline:
		if !e.cooldownExpired(t.Prev, models.AlertDeviceOnline) {
			return nil
		}
		ev := buildEvent(models.AlertDeviceOnline, t.Next,
			fmt.Sprintf("Device '%s' is back online", deviceLabel(t.Next)), e.now())
		return &ev
	case t.Prev.IsOnline && !t.Next.IsOnline:
		if !e.cooldownExpired(t.Prev, models.AlertDeviceOffline) {
			return nil
		}
		ev := buildEvent(models.AlertDeviceOffline, t.Next,
			fmt.Sprintf("Device '%s' went offline", deviceLabel(t.Next)), e.now())
		return &ev
	}
	return nil
}

// evaluateBattery 低电量报警。
// 充电中不报警；冷却窗口内的重复低电量上报被抑制，
// 冷却过期后仍低于阈值会再次报警。
func (e *Engine) evaluateBattery(t store.Transition) *models.AlertEvent {
	lvl := t.Next.BatteryLevel
	if lvl == nil || *lvl >= e.batteryThreshold {
		return nil
	}
	if t.Next.IsCharging != nil && *t.Next.IsCharging {
		return nil
	}
	if !e.cooldownExpired(t.Prev, models.AlertLowBattery) {
		return nil
	}
	ev := buildEvent(models.AlertLowBattery, t.Next,
		fmt.Sprintf("Device '%s' has low battery (%d%%)", deviceLabel(t.Next), *lvl), e.now())
	ev.BatteryLevel = lvl
	return &ev
}

// evaluateTheft 失窃设备上报新位置时报警。
// is_stolen 只能由显式操作设置，这里只消费该标志。
func (e *Engine) evaluateTheft(t store.Transition) *models.AlertEvent {
	if !t.Next.IsStolen || t.Next.Location == nil {
		return nil
	}
	if !locationChanged(t.Prev.Location, t.Next.Location) {
		return nil
	}
	if !e.cooldownExpired(t.Prev, models.AlertTheft) {
		return nil
	}
	ev := buildEvent(models.AlertTheft, t.Next,
		fmt.Sprintf("Stolen device '%s' reported a new location", deviceLabel(t.Next)), e.now())
	return &ev
}

// cooldownExpired 检查同类报警是否超出冷却窗口。
// 同一类别下的不同类型（如 offline 之后的 online）不互相抑制。
func (e *Engine) cooldownExpired(prev models.DeviceRecord, kind models.AlertKind) bool {
	stamp, ok := prev.LastAlertState[kind.Category()]
	if !ok || stamp.Kind != kind {
		return true
	}
	return e.now().Sub(stamp.EmittedAt) >= e.cooldown
}

func locationChanged(prev, next *models.Location) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return prev.Latitude != next.Latitude ||
		prev.Longitude != next.Longitude ||
		next.Timestamp.After(prev.Timestamp)
}

func deviceLabel(rec models.DeviceRecord) string {
	if rec.DeviceName != "" {
		return rec.DeviceName
	}
	return rec.DeviceID
}
