package main

import (
	"fmt"
	"strings"
	"time"

	"OnlineGate/config"
	"OnlineGate/logger"
	"OnlineGate/middleware"
	"OnlineGate/module/online"
	"OnlineGate/service/gateway"
	"OnlineGate/service/natsx"
	"OnlineGate/service/presence"
	"OnlineGate/service/storage"
	redisstore "OnlineGate/service/storage/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	logger.Init(cfg.Log)
	logRuntimeEnv(cfg)

	// Aggregate stats: redis when configured, else in-process. A
	// configured but unreachable backend refuses to start.
	var stats storage.Stats
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Log.Fatal("redis init", zap.Error(err))
		}
		stats = storage.NewRedisStats(rdb, time.Now)
	} else {
		stats = storage.NewMemoryStats(time.Now)
	}

	reg := presence.NewRegistry(presence.Options{
		TTL:        cfg.TTL(),
		SweepEvery: cfg.SweepEvery(),
		Recorder:   stats,
	})
	defer reg.Close()

	gw := gateway.NewServer(reg, gateway.Options{
		PingInterval: cfg.PingInterval(),
		SendQueue:    cfg.SendQueue,
	})
	reg.AddEventHook(gw.EventHook())

	if cfg.Nats.URL != "" {
		relay, err := natsx.NewRelay(natsx.RelayConfig{
			URL:           cfg.Nats.URL,
			Name:          cfg.Nats.Name,
			SubjectPrefix: cfg.Nats.SubjectPrefix,
		})
		if err != nil {
			logger.Log.Fatal("nats init", zap.Error(err))
		}
		defer relay.Close()
		reg.AddEventHook(relay.Hook())
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	ws := r.Group("/", middleware.Origin(cfg.AllowedOrigins))
	for _, p := range []string{"/ws", "/v1/ws"} {
		ws.GET(p, gw.HandleRoomWS)
	}
	for _, p := range []string{"/ws/web", "/v1/ws/web", "/web"} {
		ws.GET(p, gw.HandleWebWS)
	}

	online.NewHandler(reg, stats).Register(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Log.Fatal("server error", zap.Error(err))
	}
}

func logRuntimeEnv(cfg *config.Config) {
	allowed := "<empty>"
	if len(cfg.AllowedOrigins) > 0 {
		allowed = strings.Join(cfg.AllowedOrigins, ",")
	}
	logger.Info("startup config",
		zap.Int("port", cfg.Port),
		zap.Int("ttl_seconds", cfg.TTLSeconds),
		zap.Int("sweep_seconds", cfg.SweepSeconds),
		zap.Int("ping_seconds", cfg.PingSeconds),
		zap.String("allowed_origins", allowed),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Bool("nats", cfg.Nats.URL != ""),
	)
}
