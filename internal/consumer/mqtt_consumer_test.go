package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/config"
	"github.com/Jithendra123892/LAPSO/internal/evaluator"
	"github.com/Jithendra123892/LAPSO/internal/ingest"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

func newTestConsumer(t *testing.T) (*MQTTConsumer, *store.DeviceStore) {
	t.Helper()
	logger := zap.NewNop()
	deviceStore := store.NewDeviceStore(logger)
	engine := evaluator.NewEngine(20, 0)
	pipeline := ingest.NewPipeline(deviceStore, engine, nil, nil, nil, logger)

	cfg := &config.Config{}
	cfg.MQTT.HeartbeatTopic = "lapso/+/heartbeat"
	return NewMQTTConsumer(cfg, nil, pipeline, logger), deviceStore
}

func TestHandleMessage_AppliesHeartbeat(t *testing.T) {
	c, deviceStore := newTestConsumer(t)
	deviceStore.Seed(models.DeviceRecord{DeviceID: "dev-1", OwnerEmail: "o@e.com"})

	err := c.handleMessage(context.Background(), "lapso/dev-1/heartbeat", []byte(`{"battery_level":73}`))
	require.NoError(t, err)

	rec, err := deviceStore.Get("dev-1")
	require.NoError(t, err)
	assert.True(t, rec.IsOnline)
	require.NotNil(t, rec.BatteryLevel)
	assert.Equal(t, 73, *rec.BatteryLevel)
}

func TestHandleMessage_UnknownDeviceRejected(t *testing.T) {
	c, _ := newTestConsumer(t)

	err := c.handleMessage(context.Background(), "lapso/ghost/heartbeat", []byte(`{}`))
	assert.Error(t, err)
}

func TestHandleMessage_InvalidTopic(t *testing.T) {
	c, _ := newTestConsumer(t)

	err := c.handleMessage(context.Background(), "heartbeat", []byte(`{}`))
	assert.Error(t, err)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	c, deviceStore := newTestConsumer(t)
	deviceStore.Seed(models.DeviceRecord{DeviceID: "dev-1", OwnerEmail: "o@e.com"})

	err := c.handleMessage(context.Background(), "lapso/dev-1/heartbeat", []byte(`{broken`))
	assert.Error(t, err)
}
