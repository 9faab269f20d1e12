package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-qtbridge/internal/bridge"
	"go-qtbridge/internal/media"
	"go-qtbridge/internal/model"
	"go-qtbridge/internal/platform/onebot"
	"go-qtbridge/internal/platform/telegram"
	"go-qtbridge/internal/repository"
	"go-qtbridge/pkg/config"
	"go-qtbridge/pkg/db"
	"go-qtbridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// 本地开发时从 .env 注入环境变量 没有该文件不算错误
	_ = godotenv.Load()

	// 初始化配置
	if err := config.Init(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.InitLogger(config.GlobalConfig.Log.Level, config.GlobalConfig.Log.Production); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库连接
	if err := db.InitDB(); err != nil {
		logger.L.Fatal("Failed to initialize database", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 媒体管线
	endpoints := media.NewConfigEndpoints(config.GlobalConfig.Media)
	pipeline, err := media.NewPipeline(config.GlobalConfig.Media, endpoints)
	if err != nil {
		logger.L.Fatal("Failed to initialize media pipeline", zap.Error(err))
	}

	// 平台客户端
	qqClient := onebot.NewClient(config.GlobalConfig.QQ)
	tgClient := telegram.NewClient(config.GlobalConfig.Telegram)

	// 转发编排器
	orch := bridge.NewOrchestrator(bridge.Deps{
		QQ:               qqClient,
		TG:               tgClient,
		Pairs:            repository.NewPairRepository(),
		Mappings:         repository.NewMappingRepository(),
		Media:            pipeline,
		Endpoints:        endpoints,
		SharesFilesystem: config.GlobalConfig.QQ.SharesFilesystem,
	})
	defer orch.Close()

	qqClient.OnMessage(func(ev *model.QQEvent) { orch.HandleQQMessage(ctx, ev) })
	qqClient.OnRecall(func(ev *model.QQRecallEvent) { orch.HandleQQRecall(ctx, ev) })
	tgClient.OnMessage(func(u *model.TGUpdate) { orch.HandleTelegramUpdate(ctx, u) })
	tgClient.OnDelete(func(ev *model.TGDeleteEvent) { orch.HandleTelegramDelete(ctx, ev) })

	go qqClient.Run(ctx)
	go tgClient.Run(ctx)

	// 健康检查与指标
	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	// 本地落盘的媒体经此对外提供
	r.Static("/media", config.GlobalConfig.Media.ScratchDir)

	srv := &http.Server{Addr: config.GlobalConfig.HTTP.Addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.L.Info("bridge started", zap.String("addr", config.GlobalConfig.HTTP.Addr))

	<-ctx.Done()
	logger.L.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("server shutdown failed", zap.Error(err))
	}
}
