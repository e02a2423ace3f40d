package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Jithendra123892/LAPSO/internal/config"
	"github.com/Jithendra123892/LAPSO/internal/logger"
	"github.com/Jithendra123892/LAPSO/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "lapso-registry")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	registry, err := service.NewRegistryService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create registry service",
			zap.Error(err),
		)
	}
	defer registry.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动后台组件（活性扫描、MQTT 消费者）
	if err := registry.Start(ctx); err != nil {
		log.Fatal("Failed to start registry service",
			zap.Error(err),
		)
	}

	// 6. 启动 HTTP 服务（在 goroutine 中）
	srv := service.NewServer(cfg.HTTP.Addr, registry.Router(ctx), log)
	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start()
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Error("HTTP server error",
			zap.Error(err),
		)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server",
			zap.Error(err),
		)
	}

	log.Info("Registry service stopped")
}
