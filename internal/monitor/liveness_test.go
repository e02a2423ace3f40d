package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/evaluator"
	"github.com/Jithendra123892/LAPSO/internal/models"
	"github.com/Jithendra123892/LAPSO/internal/store"
)

const (
	testStaleThreshold = 90 * time.Second
	testSweepInterval  = 30 * time.Second
)

func newTestMonitor(s *store.DeviceStore) *LivenessMonitor {
	engine := evaluator.NewEngine(20, 5*time.Minute)
	return NewLivenessMonitor(s, engine, nil, testStaleThreshold, testSweepInterval, zap.NewNop())
}

func seedDevice(s *store.DeviceStore, id string, online bool, lastSeen time.Time) {
	s.Seed(models.DeviceRecord{
		DeviceID:   id,
		OwnerEmail: "owner@example.com",
		IsOnline:   online,
		LastSeenAt: lastSeen,
	})
}

func TestSweep_MarksStaleDeviceOffline(t *testing.T) {
	s := store.NewDeviceStore(zap.NewNop())
	seedDevice(s, "dev-1", true, time.Now().Add(-2*testStaleThreshold))

	m := newTestMonitor(s)
	m.Sweep(context.Background())

	rec, err := s.Get("dev-1")
	require.NoError(t, err)
	assert.False(t, rec.IsOnline)
}

func TestSweep_FreshDeviceStaysOnline(t *testing.T) {
	s := store.NewDeviceStore(zap.NewNop())
	seedDevice(s, "dev-1", true, time.Now().Add(-10*time.Second))

	m := newTestMonitor(s)
	m.Sweep(context.Background())

	rec, err := s.Get("dev-1")
	require.NoError(t, err)
	assert.True(t, rec.IsOnline)
}

func TestSweep_OfflineTransitionEmitsExactlyOnce(t *testing.T) {
	s := store.NewDeviceStore(zap.NewNop())
	seedDevice(s, "dev-1", true, time.Now().Add(-2*testStaleThreshold))

	m := newTestMonitor(s)
	m.Sweep(context.Background())

	rec, err := s.Get("dev-1")
	require.NoError(t, err)
	require.False(t, rec.IsOnline)
	stamp, ok := rec.LastAlertState[models.CategoryConnectivity]
	require.True(t, ok)
	assert.Equal(t, models.AlertDeviceOffline, stamp.Kind)
	firstEmitted := stamp.EmittedAt

	// 再扫两轮：设备依然离线，不产生新的转换和报警
	m.Sweep(context.Background())
	m.Sweep(context.Background())

	rec, err = s.Get("dev-1")
	require.NoError(t, err)
	assert.Equal(t, firstEmitted, rec.LastAlertState[models.CategoryConnectivity].EmittedAt)
}

func TestSweep_RestoredSnapshotReclassified(t *testing.T) {
	// 重启后从快照恢复的"在线"设备，静默超时的要在第一轮扫描标记离线
	s := store.NewDeviceStore(zap.NewNop())
	seedDevice(s, "stale-1", true, time.Now().Add(-time.Hour))
	seedDevice(s, "fresh-1", true, time.Now())
	seedDevice(s, "already-off", false, time.Now().Add(-time.Hour))

	m := newTestMonitor(s)
	m.Sweep(context.Background())

	stale, err := s.Get("stale-1")
	require.NoError(t, err)
	assert.False(t, stale.IsOnline)

	fresh, err := s.Get("fresh-1")
	require.NoError(t, err)
	assert.True(t, fresh.IsOnline)

	off, err := s.Get("already-off")
	require.NoError(t, err)
	assert.False(t, off.IsOnline)
	// 状态未变化的设备不应产生报警
	assert.Empty(t, off.LastAlertState)
}

func TestSweep_CancelledContextStopsEarly(t *testing.T) {
	s := store.NewDeviceStore(zap.NewNop())
	seedDevice(s, "dev-1", true, time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := newTestMonitor(s)
	m.Sweep(ctx)

	rec, err := s.Get("dev-1")
	require.NoError(t, err)
	assert.True(t, rec.IsOnline, "cancelled sweep must not apply transitions")
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	s := store.NewDeviceStore(zap.NewNop())
	m := newTestMonitor(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Start(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after context cancel")
	}
}
