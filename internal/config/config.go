package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// 心跳主题模式，如 "lapso/+/heartbeat"
	HeartbeatTopic string
}

// GeocoderConfig 反向地理编码配置
type GeocoderConfig struct {
	Enabled bool
	BaseURL string
	// 单次查询超时上限（入站请求不能被外部查询无限阻塞）
	Timeout time.Duration
}

// Config 设备注册服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	Geocoder GeocoderConfig

	HTTP struct {
		Addr string
	}

	// 活性检测与报警配置
	Registry struct {
		// 客户端预期心跳间隔
		HeartbeatInterval time.Duration
		// 超过该时长未收到报告即判定离线（默认 2x 心跳间隔）
		StaleThreshold time.Duration
		// 活性扫描周期（必须 <= 心跳间隔才能及时发现离线）
		SweepInterval time.Duration
		// 低电量阈值（百分比）
		BatteryThreshold int
		// 同类报警去重冷却窗口
		AlertCooldown time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "lapso")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "lapso-registry")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.HeartbeatTopic = getEnv("MQTT_HEARTBEAT_TOPIC", "lapso/+/heartbeat")

	cfg.Geocoder.Enabled = getEnv("GEOCODER_ENABLED", "false") == "true"
	cfg.Geocoder.BaseURL = getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org")
	cfg.Geocoder.Timeout = getEnvDuration("GEOCODER_TIMEOUT", 2*time.Second)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Registry.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", 45*time.Second)
	cfg.Registry.StaleThreshold = getEnvDuration("STALE_THRESHOLD", 2*cfg.Registry.HeartbeatInterval)
	cfg.Registry.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 30*time.Second)
	cfg.Registry.BatteryThreshold = getEnvInt("BATTERY_THRESHOLD", 20)
	cfg.Registry.AlertCooldown = getEnvDuration("ALERT_COOLDOWN", 5*time.Minute)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
