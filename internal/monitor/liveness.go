package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/bus"
	"github.com/Jithendra123892/LAPSO/internal/evaluator"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

// LivenessMonitor 活性监控。
// 周期性扫描全量设备，根据 last_seen_at 的时间差重新判定在线/离线。
// 离线检测不依赖任何请求路径：停止上报的设备必须在下一轮扫描被标记离线。
type LivenessMonitor struct {
	store          *store.DeviceStore
	engine         *evaluator.Engine
	bus            *bus.Bus
	staleThreshold time.Duration
	sweepInterval  time.Duration
	logger         *zap.Logger
}

// NewLivenessMonitor 创建活性监控
func NewLivenessMonitor(
	deviceStore *store.DeviceStore,
	engine *evaluator.Engine,
	eventBus *bus.Bus,
	staleThreshold time.Duration,
	sweepInterval time.Duration,
	logger *zap.Logger,
) *LivenessMonitor {
	return &LivenessMonitor{
		store:          deviceStore,
		engine:         engine,
		bus:            eventBus,
		staleThreshold: staleThreshold,
		sweepInterval:  sweepInterval,
		logger:         logger,
	}
}

// Start 启动扫描循环（阻塞直到 ctx 取消）
func (m *LivenessMonitor) Start(ctx context.Context) error {
	m.logger.Info("Liveness monitor started",
		zap.Duration("sweep_interval", m.sweepInterval),
		zap.Duration("stale_threshold", m.staleThreshold),
	)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	// 启动时立即执行一轮
	m.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Liveness monitor stopped")
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep 执行一轮全量扫描。
// 逐设备独立处理：单个设备的失败只记录日志，不中断整轮扫描。
func (m *LivenessMonitor) Sweep(ctx context.Context) {
	now := time.Now()
	ids := m.store.DeviceIDs()

	var transitions int
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if m.sweepOne(ctx, id, now) {
			transitions++
		}
	}

	if transitions > 0 {
		m.logger.Info("Liveness sweep completed",
			zap.Int("device_count", len(ids)),
			zap.Int("transitions", transitions),
		)
	} else {
		m.logger.Debug("Liveness sweep completed",
			zap.Int("device_count", len(ids)),
		)
	}
}

// sweepOne 重新判定单个设备的在线状态，返回是否发生了状态转换。
// 判定由 Reclassify 在设备锁内完成，和并发上报之间不会互相丢失更新。
func (m *LivenessMonitor) sweepOne(ctx context.Context, deviceID string, now time.Time) bool {
	t, events, err := m.store.Reclassify(deviceID, now, m.staleThreshold, m.engine.Evaluate)
	if err != nil {
		// 扫描期间被并发删除，跳过
		return false
	}
	if t.Prev.IsOnline == t.Next.IsOnline {
		return false
	}

	m.logger.Info("Device liveness transition",
		zap.String("device_id", deviceID),
		zap.Bool("is_online", t.Next.IsOnline),
		zap.Time("last_seen_at", t.Next.LastSeenAt),
	)

	if m.bus != nil {
		for _, ev := range events {
			m.bus.PublishAlert(ctx, ev)
		}
		m.bus.PublishDeviceUpdate(ctx, models.DeviceUpdate{
			Device:    t.Next,
			UpdatedAt: now,
		})
	}
	return true
}
