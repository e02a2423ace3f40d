package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/models"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBus(client, zap.NewNop()), mr
}

func TestAlertTopic(t *testing.T) {
	assert.Equal(t, "alerts.owner@example.com", AlertTopic("owner@example.com"))
}

func TestBus_PublishAndSubscribeAlert(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, AlertTopic("owner@example.com"))
	// 等订阅建立
	time.Sleep(50 * time.Millisecond)

	event := models.AlertEvent{
		EventID:    "ev-1",
		Kind:       models.AlertLowBattery,
		Category:   models.CategoryBattery,
		DeviceID:   "dev-1",
		OwnerEmail: "owner@example.com",
		Message:    "Device 'Laptop' has low battery (5%)",
		EmittedAt:  time.Now().UTC(),
	}
	b.PublishAlert(ctx, event)

	select {
	case raw := <-ch:
		var got models.AlertEvent
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "ev-1", got.EventID)
		assert.Equal(t, models.AlertLowBattery, got.Kind)
		assert.Equal(t, "dev-1", got.DeviceID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert event not received")
	}
}

func TestBus_AlertsScopedByOwner(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other := b.Subscribe(ctx, AlertTopic("other@example.com"))
	time.Sleep(50 * time.Millisecond)

	b.PublishAlert(ctx, models.AlertEvent{
		EventID:    "ev-1",
		Kind:       models.AlertTheft,
		OwnerEmail: "owner@example.com",
	})

	select {
	case raw := <-other:
		t.Fatalf("event leaked to other owner's topic: %s", raw)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_PublishDeviceUpdateBroadcast(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, TopicDeviceUpdates)
	time.Sleep(50 * time.Millisecond)

	b.PublishDeviceUpdate(ctx, models.DeviceUpdate{
		Device:    models.DeviceRecord{DeviceID: "dev-1", OwnerEmail: "owner@example.com", IsOnline: true},
		UpdatedAt: time.Now().UTC(),
	})

	select {
	case raw := <-ch:
		var got models.DeviceUpdate
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "dev-1", got.Device.DeviceID)
		assert.True(t, got.Device.IsOnline)
	case <-time.After(2 * time.Second):
		t.Fatal("device update not received")
	}
}

func TestBus_SubscribeClosesOnContextCancel(t *testing.T) {
	b, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, TopicDeviceUpdates)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBus_PublishFailureDoesNotPanic(t *testing.T) {
	b, mr := newTestBus(t)
	mr.Close()

	// 扇出失败只记录日志，采集路径不受影响
	assert.NotPanics(t, func() {
		b.PublishAlert(context.Background(), models.AlertEvent{EventID: "ev-1", OwnerEmail: "o@e.com"})
		b.PublishDeviceUpdate(context.Background(), models.DeviceUpdate{})
	})
}
