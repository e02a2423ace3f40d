package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.Geocoder.Enabled)

	assert.Equal(t, 45*time.Second, cfg.Registry.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.Registry.StaleThreshold)
	assert.Equal(t, 30*time.Second, cfg.Registry.SweepInterval)
	assert.Equal(t, 20, cfg.Registry.BatteryThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Registry.AlertCooldown)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HEARTBEAT_INTERVAL", "30s")
	t.Setenv("BATTERY_THRESHOLD", "15")
	t.Setenv("MQTT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.Registry.HeartbeatInterval)
	// 未显式设置时离线阈值跟随心跳间隔
	assert.Equal(t, time.Minute, cfg.Registry.StaleThreshold)
	assert.Equal(t, 15, cfg.Registry.BatteryThreshold)
	assert.True(t, cfg.MQTT.Enabled)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("SWEEP_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30*time.Second, cfg.Registry.SweepInterval)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "lapso",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=lapso sslmode=disable",
		cfg.GetDSN(),
	)
}
