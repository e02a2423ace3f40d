package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/bus"
	"github.com/Jithendra123892/LAPSO/internal/config"
	"github.com/Jithendra123892/LAPSO/internal/consumer"
	"github.com/Jithendra123892/LAPSO/internal/evaluator"
	"github.com/Jithendra123892/LAPSO/internal/geocoder"
	httpapi "github.com/Jithendra123892/LAPSO/internal/http"
	"github.com/Jithendra123892/LAPSO/internal/ingest"
	"github.com/Jithendra123892/LAPSO/internal/monitor"
	"github.com/Jithendra123892/LAPSO/internal/mqtt"
	"github.com/Jithendra123892/LAPSO/internal/repository"
	"github.com/Jithendra123892/LAPSO/internal/store"
	"github.com/Jithendra123892/LAPSO/internal/websocket"
)

// RegistryService 设备注册服务（整合各层）
type RegistryService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	deviceStore  *store.DeviceStore
	devicesRepo  *repository.PostgresDevicesRepo
	engine       *evaluator.Engine
	eventBus     *bus.Bus
	pipeline     *ingest.Pipeline
	liveness     *monitor.LivenessMonitor
	hub          *websocket.Hub
	router       *httpapi.Router
	mqttClient   *mqtt.Client
	mqttConsumer *consumer.MQTTConsumer

	cancel context.CancelFunc
}

// NewRegistryService 创建设备注册服务
func NewRegistryService(cfg *config.Config, logger *zap.Logger) (*RegistryService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试数据库连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 测试 Redis 连接
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. Repository 层（快照持久化，重启后恢复注册表）
	devicesRepo := repository.NewPostgresDevicesRepo(db, logger)
	if err := devicesRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 4. 内存注册表，从数据库快照恢复
	deviceStore := store.NewDeviceStore(logger)
	records, err := devicesRepo.LoadDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device snapshots: %w", err)
	}
	for _, rec := range records {
		deviceStore.Seed(rec)
	}
	logger.Info("Device registry restored from snapshots",
		zap.Int("device_count", len(records)),
	)

	// 5. 报警评估引擎与事件总线
	engine := evaluator.NewEngine(cfg.Registry.BatteryThreshold, cfg.Registry.AlertCooldown)
	eventBus := bus.NewBus(redisClient, logger)

	// 6. 可选的反向地理编码
	var geo ingest.Geocoder
	if cfg.Geocoder.Enabled {
		geo = geocoder.NewClient(cfg.Geocoder.BaseURL, cfg.Geocoder.Timeout, logger)
	}

	// 7. 采集管道与活性监控
	pipeline := ingest.NewPipeline(deviceStore, engine, eventBus, devicesRepo, geo, logger)
	liveness := monitor.NewLivenessMonitor(
		deviceStore,
		engine,
		eventBus,
		cfg.Registry.StaleThreshold,
		cfg.Registry.SweepInterval,
		logger,
	)

	s := &RegistryService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		deviceStore: deviceStore,
		devicesRepo: devicesRepo,
		engine:      engine,
		eventBus:    eventBus,
		pipeline:    pipeline,
		liveness:    liveness,
	}

	// 8. 可选的 MQTT 心跳消费者
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
		}
		s.mqttClient = mqttClient
		s.mqttConsumer = consumer.NewMQTTConsumer(cfg, mqttClient, pipeline, logger)
	}

	return s, nil
}

// Router 构建 HTTP 路由（WebSocket hub 绑定到服务生命周期 ctx）
func (s *RegistryService) Router(ctx context.Context) *httpapi.Router {
	if s.router != nil {
		return s.router
	}

	s.hub = websocket.NewHub(ctx, s.eventBus, s.logger)
	handler := httpapi.NewDeviceHandler(s.pipeline, s.deviceStore, s.config.Registry.BatteryThreshold, s.logger)

	router := httpapi.NewRouter(s.logger)
	router.RegisterDeviceRoutes(handler)
	router.RegisterSubscriptionRoutes(s.hub)

	s.router = router
	return router
}

// Start 启动后台组件（活性扫描、MQTT 消费者）
func (s *RegistryService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting registry service")

	go func() {
		if err := s.liveness.Start(ctx); err != nil {
			s.logger.Error("Liveness monitor exited", zap.Error(err))
		}
	}()

	if s.mqttConsumer != nil {
		go func() {
			if err := s.mqttConsumer.Start(ctx); err != nil {
				s.logger.Error("MQTT consumer exited", zap.Error(err))
			}
		}()
	}

	return nil
}

// Stop 停止服务
func (s *RegistryService) Stop() error {
	s.logger.Info("Stopping registry service")

	if s.cancel != nil {
		s.cancel()
	}

	if s.mqttConsumer != nil {
		s.mqttConsumer.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭数据库连接
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}
