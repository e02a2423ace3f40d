package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/models"
)

const (
	// TopicDeviceUpdates 广播快照主题（仪表盘订阅）
	TopicDeviceUpdates = "device-updates"
	// alertTopicPrefix owner 范围的报警主题前缀
	alertTopicPrefix = "alerts."
)

// AlertTopic 构建 owner 范围的报警主题名
func AlertTopic(ownerEmail string) string {
	return alertTopicPrefix + ownerEmail
}

// Bus 基于 Redis Pub/Sub 的事件扇出总线。
// 投递语义为 best-effort / at-most-once：断线的订阅者丢失断线期间的事件，
// 重连后从快照接口重新拉取当前状态（Store 才是事实来源）。
type Bus struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewBus 创建扇出总线
func NewBus(redisClient *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishAlert 发布报警事件到 owner 范围主题。
// 扇出失败只记录日志，永远不会阻断或回滚采集路径。
func (b *Bus) PublishAlert(ctx context.Context, event models.AlertEvent) {
	topic := AlertTopic(event.OwnerEmail)
	if err := b.publishJSON(ctx, topic, event); err != nil {
		b.logger.Error("Failed to publish alert event",
			zap.String("topic", topic),
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.Kind)),
			zap.Error(err),
		)
		return
	}
	b.logger.Info("Alert event published",
		zap.String("topic", topic),
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.Kind)),
		zap.String("device_id", event.DeviceID),
	)
}

// PublishDeviceUpdate 发布设备快照到广播主题
func (b *Bus) PublishDeviceUpdate(ctx context.Context, update models.DeviceUpdate) {
	if err := b.publishJSON(ctx, TopicDeviceUpdates, update); err != nil {
		b.logger.Error("Failed to publish device update",
			zap.String("device_id", update.Device.DeviceID),
			zap.Error(err),
		)
	}
}

func (b *Bus) publishJSON(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := b.redisClient.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe 订阅一个主题，返回原始 JSON 消息通道。
// 通道在 ctx 取消后关闭。慢订阅者的消息由 Redis Pub/Sub 直接丢弃。
func (b *Bus) Subscribe(ctx context.Context, topic string) <-chan []byte {
	sub := b.redisClient.Subscribe(ctx, topic)
	out := make(chan []byte, 64)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					// 订阅者处理不过来，丢弃（at-most-once）
					b.logger.Warn("Subscriber buffer full, dropping event",
						zap.String("topic", topic),
					)
				}
			}
		}
	}()

	return out
}
