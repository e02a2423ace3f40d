package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/bus"
	"github.com/Jithendra123892/LAPSO/internal/evaluator"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

// ErrValidation 请求缺少必填字段或格式非法
var ErrValidation = errors.New("validation failed")

// DeviceWriter 设备快照持久化（可选，写入失败不影响采集路径）
type DeviceWriter interface {
	SaveDevice(ctx context.Context, rec models.DeviceRecord) error
	DeleteDevice(ctx context.Context, deviceID string) error
}

// Geocoder 反向地理编码（可选；调用方保证有超时上限）
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Result 采集操作的同步应答。
// 客户端会无脑重试，所以失败也通过 success 标志显式返回而不是只靠 HTTP 状态码。
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Created bool   `json:"created,omitempty"`
}

// Pipeline 采集管道：校验 → 写入 Store → 同步评估报警 → 发布事件 → 应答
type Pipeline struct {
	store    *store.DeviceStore
	engine   *evaluator.Engine
	bus      *bus.Bus
	writer   DeviceWriter
	geocoder Geocoder
	logger   *zap.Logger
}

// NewPipeline 创建采集管道。writer 与 geocoder 可为 nil。
func NewPipeline(
	deviceStore *store.DeviceStore,
	engine *evaluator.Engine,
	eventBus *bus.Bus,
	writer DeviceWriter,
	geocoder Geocoder,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:    deviceStore,
		engine:   engine,
		bus:      eventBus,
		writer:   writer,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Register 注册设备（幂等：重复注册只更新，不产生重复记录）
func (p *Pipeline) Register(ctx context.Context, deviceID string, report models.Report) (Result, error) {
	if deviceID == "" {
		return Result{Message: "device_id is required"}, ErrValidation
	}
	if report.OwnerEmail == "" {
		return Result{Message: "owner_email is required"}, ErrValidation
	}
	return p.apply(ctx, deviceID, report, true)
}

// Update 应用一次心跳/更新上报（未知设备返回 store.ErrNotFound）
func (p *Pipeline) Update(ctx context.Context, deviceID string, report models.Report) (Result, error) {
	if deviceID == "" {
		return Result{Message: "device_id is required"}, ErrValidation
	}
	return p.apply(ctx, deviceID, report, false)
}

func (p *Pipeline) apply(ctx context.Context, deviceID string, report models.Report, allowCreate bool) (Result, error) {
	sanitizeReport(&report, p.logger, deviceID)
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	p.resolveAddress(ctx, &report)

	t, events, err := p.store.Upsert(deviceID, report, allowCreate, p.engine.Evaluate)
	if err != nil {
		return Result{Message: err.Error()}, err
	}

	if t.StaleIgnored {
		// 乱序旧报文：接受请求，不改状态（informational）
		return Result{Success: true, Message: "stale report ignored"}, nil
	}

	p.persist(ctx, t.Next)
	p.publish(ctx, t.Next, events)

	msg := "device updated"
	if t.Created {
		msg = "device registered"
	}
	return Result{Success: true, Message: msg, Created: t.Created}, nil
}

// MarkStolen 显式的失窃标记（owner/admin 动作）
func (p *Pipeline) MarkStolen(ctx context.Context, deviceID string) (Result, error) {
	return p.setStolen(ctx, deviceID, true, "device marked as stolen")
}

// MarkFound 显式的找回操作，唯一能清除 is_stolen 的路径
func (p *Pipeline) MarkFound(ctx context.Context, deviceID string) (Result, error) {
	return p.setStolen(ctx, deviceID, false, "device marked as found")
}

func (p *Pipeline) setStolen(ctx context.Context, deviceID string, stolen bool, msg string) (Result, error) {
	if deviceID == "" {
		return Result{Message: "device_id is required"}, ErrValidation
	}
	t, err := p.store.SetStolen(deviceID, stolen)
	if err != nil {
		return Result{Message: err.Error()}, err
	}
	p.persist(ctx, t.Next)
	p.publish(ctx, t.Next, nil)
	return Result{Success: true, Message: msg}, nil
}

// Remove 显式删除设备记录（长期静默永远不会触发删除）
func (p *Pipeline) Remove(ctx context.Context, deviceID string) (Result, error) {
	if err := p.store.Remove(deviceID); err != nil {
		return Result{Message: err.Error()}, err
	}
	if p.writer != nil {
		if err := p.writer.DeleteDevice(ctx, deviceID); err != nil {
			p.logger.Error("Failed to delete device snapshot",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}
	return Result{Success: true, Message: "device removed"}, nil
}

// resolveAddress 上报带坐标但没有地址时做一次反向地理编码。
// 查询有超时上限，失败只记录日志——采集请求不能被外部查询阻塞。
func (p *Pipeline) resolveAddress(ctx context.Context, report *models.Report) {
	if p.geocoder == nil || report.Address != "" {
		return
	}
	if report.Latitude == nil || report.Longitude == nil {
		return
	}
	addr, err := p.geocoder.ReverseGeocode(ctx, *report.Latitude, *report.Longitude)
	if err != nil {
		p.logger.Debug("Reverse geocoding failed",
			zap.Float64("latitude", *report.Latitude),
			zap.Float64("longitude", *report.Longitude),
			zap.Error(err),
		)
		return
	}
	report.Address = addr
}

// persist 尽力而为的快照持久化（Store 是运行时事实来源）
func (p *Pipeline) persist(ctx context.Context, rec models.DeviceRecord) {
	if p.writer == nil {
		return
	}
	if err := p.writer.SaveDevice(ctx, rec); err != nil {
		p.logger.Error("Failed to persist device snapshot",
			zap.String("device_id", rec.DeviceID),
			zap.Error(err),
		)
	}
}

// publish 发布报警事件和设备快照（评估已完成，锁已释放）
func (p *Pipeline) publish(ctx context.Context, rec models.DeviceRecord, events []models.AlertEvent) {
	if p.bus == nil {
		return
	}
	for _, ev := range events {
		p.bus.PublishAlert(ctx, ev)
	}
	p.bus.PublishDeviceUpdate(ctx, models.DeviceUpdate{
		Device:    rec,
		UpdatedAt: time.Now(),
	})
}

// sanitizeReport 丢弃超出合法范围的数值字段（字段级丢弃，不拒绝整个请求：
// 浏览器端遥测天然不完整，部分上报是一等公民）
func sanitizeReport(report *models.Report, logger *zap.Logger, deviceID string) {
	if report.BatteryLevel != nil && (*report.BatteryLevel < 0 || *report.BatteryLevel > 100) {
		logger.Warn("Dropping out-of-range battery level",
			zap.String("device_id", deviceID),
			zap.Int("battery_level", *report.BatteryLevel),
		)
		report.BatteryLevel = nil
	}
	if report.Latitude != nil && (*report.Latitude < -90 || *report.Latitude > 90) {
		logger.Warn("Dropping out-of-range latitude",
			zap.String("device_id", deviceID),
			zap.Float64("latitude", *report.Latitude),
		)
		report.Latitude = nil
		report.Longitude = nil
	}
	if report.Longitude != nil && (*report.Longitude < -180 || *report.Longitude > 180) {
		logger.Warn("Dropping out-of-range longitude",
			zap.String("device_id", deviceID),
			zap.Float64("longitude", *report.Longitude),
		)
		report.Latitude = nil
		report.Longitude = nil
	}
}
