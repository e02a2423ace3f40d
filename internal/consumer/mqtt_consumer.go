package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/config"
	"github.com/Jithendra123892/LAPSO/internal/ingest"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/mqtt"
)

// MQTTConsumer MQTT心跳消费者。
// 装了常驻 agent 的设备走 MQTT 上报，和 HTTP 路径进同一条采集管道。
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	pipeline   *ingest.Pipeline
	logger     *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	pipeline *ingest.Pipeline,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		pipeline:   pipeline,
		logger:     logger,
	}
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if !c.mqttClient.IsConnected() {
		return fmt.Errorf("mqtt client is not connected")
	}

	topic := c.config.MQTT.HeartbeatTopic
	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, func(t string, payload []byte) error {
		return c.handleMessage(ctx, t, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to heartbeat topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
	)

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop() {
	if err := c.mqttClient.Unsubscribe(c.config.MQTT.HeartbeatTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 处理单条心跳消息。
// 主题格式: lapso/{device_id}/heartbeat
func (c *MQTTConsumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	deviceID := parts[1]

	var report models.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		c.logger.Error("Failed to unmarshal heartbeat payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal heartbeat: %w", err)
	}

	result, err := c.pipeline.Update(ctx, deviceID, report)
	if err != nil {
		c.logger.Warn("MQTT heartbeat rejected",
			zap.String("device_id", deviceID),
			zap.String("message", result.Message),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("MQTT heartbeat applied",
		zap.String("device_id", deviceID),
		zap.String("message", result.Message),
	)
	return nil
}
